//////////////////////////////////////////////////////////////////////////////
//
// File media sink
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package media

import (
	"bufio"
	"os"
	"sync"
)

// FileSink is a generic file writer, useful for testing or writing
// decoded audio to a pipe
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

func NewFileSink(filename string) (*FileSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	return &FileSink{file: f, w: bufio.NewWriter(f)}, nil
}

// Close file sink
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// Write buffer to file
func (s *FileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
