package extract

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// MinStringLength is the shortest printable run Strings emits.
const MinStringLength = 4

// Strings writes every run of at least minLen printable ASCII bytes in r to
// w, one per line, like `strings -a`.
func Strings(r io.Reader, w io.Writer, minLen int) error {
	if minLen <= 0 {
		minLen = MinStringLength
	}

	br := bufio.NewReaderSize(r, 64*1024)
	bw := bufio.NewWriter(w)
	run := make([]byte, 0, 256)

	flush := func() error {
		if len(run) >= minLen {
			if _, err := bw.Write(run); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		run = run[:0]
		return nil
	}

	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if isPrintable(b) {
			run = append(run, b)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return bw.Flush()
}

// StringsFile writes the printable runs of path to path + ".strings".
func StringsFile(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	outPath := path + ".strings"
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}

	if err := Strings(in, out, MinStringLength); err != nil {
		out.Close()
		return "", fmt.Errorf("extracting strings from %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return outPath, nil
}

func isPrintable(b byte) bool {
	return b == '\t' || (b >= 0x20 && b <= 0x7e)
}
