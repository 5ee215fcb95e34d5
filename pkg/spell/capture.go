package spell

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// castMu serializes every region that swaps the process stdio handles.
// Concurrent invocations without it would interleave captured output.
var castMu sync.Mutex

// capturedIO is the scoped stream-redirection resource: acquire swaps
// os.Stdout (and os.Stdin when input is provided) for pipes, restore puts the
// originals back and returns everything the spell wrote. Callers must hold
// castMu for the whole acquire/run/restore window.
type capturedIO struct {
	prevOut *os.File
	prevIn  *os.File
	outR    *os.File
	outW    *os.File
	inR     *os.File
	done    chan struct{}
	buf     bytes.Buffer
}

func captureStdio(input string) (*capturedIO, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	c := &capturedIO{
		prevOut: os.Stdout,
		prevIn:  os.Stdin,
		outR:    outR,
		outW:    outW,
		done:    make(chan struct{}),
	}
	os.Stdout = outW

	if input != "" {
		inR, inW, err := os.Pipe()
		if err != nil {
			os.Stdout = c.prevOut
			outW.Close()
			outR.Close()
			return nil, err
		}
		go func() {
			_, _ = io.WriteString(inW, input)
			inW.Close()
		}()
		os.Stdin = inR
		c.inR = inR
	}

	go func() {
		defer close(c.done)
		_, _ = io.Copy(&c.buf, outR)
	}()
	return c, nil
}

// restore reinstates the original streams on every exit path and drains the
// capture pipe before returning its contents.
func (c *capturedIO) restore() string {
	os.Stdout = c.prevOut
	os.Stdin = c.prevIn
	c.outW.Close()
	<-c.done
	c.outR.Close()
	if c.inR != nil {
		c.inR.Close()
	}
	return c.buf.String()
}
