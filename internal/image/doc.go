// Package image loads executable firmware images into memory sections.
//
// Three on-disk formats are supported and sniffed automatically:
//   - 32-bit ELF: loadable program-header segments become sections at their
//     physical load address
//   - Intel HEX: data records accumulate into sections, split at any address
//     discontinuity; record checksums are enforced
//   - raw BIN: a single section at address 0, relocatable by the caller
//
// The section list is rebuilt atomically per load: a failed load never
// exposes a partial list. Byte lookups via FindSpan reject any span that is
// not fully contained in exactly one section, so patch code can never write
// across a section boundary.
//
// # Usage
//
//	img, err := image.Load("firmware.hex")
//	if err != nil {
//	    return err
//	}
//	span, err := img.FindSpan(0x0000, 32)   // first flash page
//	if err != nil {
//	    return err
//	}
//	// span aliases the section buffer; writes patch the loaded image
package image
