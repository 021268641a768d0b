package flash

// State is the orchestrator state. Idle is the resting state, re-entered
// after every action; the Download happy path runs Save through PostProcess
// in order, and the four diagnostic states are side entries that each
// attach, perform one operation, detach and return to Idle.
type State int

const (
	StateInit State = iota
	StateIdle
	StateSave
	StateAttach
	StatePreDownload
	StatePatchFile
	StateClearFlash
	StateDownload
	StateOptionBytes
	StateVerify
	StateFinish
	StatePostProcess
	StateEraseOptBytes
	StateFullErase
	StateBlankCheck
	StateDumpFlash
)

var stateNames = map[State]string{
	StateInit:          "Init",
	StateIdle:          "Idle",
	StateSave:          "Save",
	StateAttach:        "Attach",
	StatePreDownload:   "PreDownload",
	StatePatchFile:     "PatchFile",
	StateClearFlash:    "ClearFlash",
	StateDownload:      "Download",
	StateOptionBytes:   "OptionBytes",
	StateVerify:        "Verify",
	StateFinish:        "Finish",
	StatePostProcess:   "PostProcess",
	StateEraseOptBytes: "EraseOptBytes",
	StateFullErase:     "FullErase",
	StateBlankCheck:    "BlankCheck",
	StateDumpFlash:     "DumpFlash",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Request is a foreground action submitted to the orchestrator, picked up
// the next time it polls in Idle.
type Request int

const (
	ReqNone Request = iota
	ReqDownload
	ReqEraseOptBytes
	ReqFullErase
	ReqBlankCheck
	ReqDumpFlash
)

func (r Request) String() string {
	switch r {
	case ReqDownload:
		return "download"
	case ReqEraseOptBytes:
		return "erase-optbytes"
	case ReqFullErase:
		return "full-erase"
	case ReqBlankCheck:
		return "blank-check"
	case ReqDumpFlash:
		return "dump-flash"
	default:
		return "none"
	}
}
