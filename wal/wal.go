// Copyright 2024 BINARY Members
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wal implements the write-ahead log backing each memtable: every
// entry accepted by the memtable is appended here first so that a crash
// before the next flush can be replayed from disk.
package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/veridian-db/veridian/pkg/bufferpool"
	"github.com/veridian-db/veridian/pkg/types"
	"github.com/veridian-db/veridian/utils"
)

const _ext = ".log"

var _lastVersion int64

// WAL is a single append-only log file. Entries are written and read whole;
// there is no buffering layer between Write and the underlying file.
type WAL struct {
	mu sync.Mutex

	fd      *os.File
	dir     string
	path    string
	version int64
}

func nextVersion() int64 {
	for {
		curr := atomic.LoadInt64(&_lastVersion)
		next := curr + 1
		if atomic.CompareAndSwapInt64(&_lastVersion, curr, next) {
			return next
		}
	}
}

func fileName(version int64) string {
	return fmt.Sprintf("%020d%s", version, _ext)
}

// Create starts a brand-new WAL segment in dir.
func Create(dir string) (*WAL, error) {
	version := nextVersion()
	p := path.Join(dir, fileName(version))

	fd, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &WAL{
		fd:      fd,
		dir:     dir,
		path:    p,
		version: version,
	}, nil
}

// Open reopens an existing WAL segment found on disk, e.g. during recovery.
func Open(p string) (*WAL, error) {
	fd, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &WAL{
		fd:      fd,
		dir:     path.Dir(p),
		path:    p,
		version: ParseVersion(path.Base(p)),
	}, nil
}

func (w *WAL) Version() int64 {
	return w.version
}

// Reset closes out this segment's place in rotation by handing back a fresh
// one in the same directory; the caller is responsible for flushing and
// deleting the old segment once its contents are durable elsewhere.
func (w *WAL) Reset() (*WAL, error) {
	return Create(w.dir)
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fd.Close()
}

func (w *WAL) Delete() error {
	w.mu.Lock()
	_ = w.fd.Close()
	w.mu.Unlock()
	return os.Remove(w.path)
}

// Write appends entries to the segment in order. Each call is a single
// write-lock section; entries already durable before a crash are guaranteed
// to be read back by Read.
func (w *WAL) Write(entries ...types.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(buf)

	ew := utils.NewErrorWriter(buf)
	for _, entry := range entries {
		ew.Write(binary.LittleEndian, uint32(len(entry.Key)))
		ew.Write(binary.LittleEndian, []byte(entry.Key))
		ew.Write(binary.LittleEndian, uint32(len(entry.Value)))
		ew.Write(binary.LittleEndian, entry.Value)
		tombstone := uint8(0)
		if entry.Tombstone {
			tombstone = 1
		}
		ew.Write(binary.LittleEndian, tombstone)
	}
	if err := ew.Error(); err != nil {
		return err
	}

	_, err := w.fd.Write(buf.Bytes())
	return err
}

// Read replays every entry written to this segment, in write order.
func (w *WAL) Read() ([]types.Entry, error) {
	w.mu.Lock()
	p := w.path
	w.mu.Unlock()

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var entries []types.Entry
	r := utils.NewErrorReader(bytes.NewReader(data))

	for {
		var keyLen uint32
		r.Read(binary.LittleEndian, &keyLen)
		if err := r.Error(); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		key := make([]byte, keyLen)
		r.Read(binary.LittleEndian, key)

		var valueLen uint32
		r.Read(binary.LittleEndian, &valueLen)

		value := make([]byte, valueLen)
		r.Read(binary.LittleEndian, value)

		var tombstone uint8
		r.Read(binary.LittleEndian, &tombstone)

		if err := r.Error(); err != nil {
			return nil, err
		}

		entries = append(entries, types.Entry{
			Key:       string(key),
			Value:     value,
			Tombstone: tombstone == 1,
		})
	}

	return entries, nil
}

// ParseVersion extracts the segment version embedded in a WAL file name.
// Non-WAL file names parse to 0.
func ParseVersion(name string) int64 {
	if path.Ext(name) != _ext {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSuffix(name, _ext), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func CompareVersion(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
