package endpoint

import "io"

// NMEA limits sentences to 82 characters; anything far longer is garbage.
const maxLineLength = 1024

// readLines reads r until it fails and calls fn for every CR or LF
// terminated line. Serial ports report a read timeout as io.EOF; with
// tolerateEOF set those are retried until quit is closed.
func readLines(r io.Reader, tolerateEOF bool, quit <-chan struct{}, fn func(line string)) error {
	buf := make([]byte, 4096)
	pending := make([]byte, 0, 128)
	for {
		n, err := r.Read(buf)
		for _, c := range buf[:n] {
			if c == '\r' || c == '\n' {
				if len(pending) > 0 {
					fn(string(pending))
					pending = pending[:0]
				}
				continue
			}
			if len(pending) >= maxLineLength {
				pending = pending[:0]
			}
			pending = append(pending, c)
		}
		if err == nil {
			continue
		}
		if err == io.EOF && tolerateEOF {
			select {
			case <-quit:
				return nil
			default:
				continue
			}
		}
		if len(pending) > 0 {
			fn(string(pending))
		}
		return err
	}
}
