// Package probe defines the debug-probe transport contract and its
// implementations.
//
// The flash orchestrator talks to hardware only through the Transport
// interface: connect, attach, detach, monitor commands, erase, write, read,
// verify. Status and progress flow back through a synchronous callback, and
// monitor-command replies are surfaced as reply events so post-process
// scripts can wait on them.
//
// Two collaborators live alongside the interface:
//
//   - Scanner discovers networked probe daemons on the local network via
//     mDNS ("_burnmate-probe._tcp" services)
//   - Remote is a Transport implementation speaking JSON over a websocket
//     to such a daemon
//
// The wire protocol of the probe itself (SWD/JTAG) is out of scope; the
// daemon owns it.
package probe
