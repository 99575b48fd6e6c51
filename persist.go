// Copyright 2025 BINARY Members
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

package veridian

import (
	"bytes"
	"encoding/binary"

	"github.com/veridian-db/veridian/pkg/bufferpool"
	"github.com/veridian-db/veridian/pkg/types"
	"github.com/veridian-db/veridian/utils"
)

// store is the persistent key-value collaborator the transaction engine is
// built on: a single-key atomic get/set/delete/cas plus a prefix scan. DB
// satisfies it through dbStore; the tests run it over an on-disk DB.
//
// Every Ts and Version is encoded big-endian so that lexicographic byte
// comparison of a key agrees with numeric comparison of the timestamp it
// encodes. That property is what lets !-prefixed write-set records be
// recovered in timestamp order by a plain prefix scan.
type store interface {
	get(key string) ([]byte, bool)
	set(key string, value []byte)
	del(key string)
	cas(key string, old, newVal []byte) error
	scanPrefix(prefix string) []types.KV
}

// dbStore adapts *DB to the store interface.
type dbStore struct {
	db *DB
}

func (s dbStore) get(key string) ([]byte, bool)           { return s.db.Get(key) }
func (s dbStore) set(key string, value []byte)            { s.db.Set(key, value) }
func (s dbStore) del(key string)                          { s.db.Delete(key) }
func (s dbStore) cas(key string, old, newVal []byte) error { return s.db.Cas(key, old, newVal) }
func (s dbStore) scanPrefix(prefix string) []types.KV      { return s.db.ScanPrefix(prefix) }

const (
	_atPrefix  = '@' // 0x40, namespaces a key's committed version list
	_bangByte  = '!' // 0x21, namespaces a pending write-set journal entry
	_tsPersist = "tx_persist"
)

func atKey(key string) string {
	return string(_atPrefix) + key
}

func bangKey(ts uint64) string {
	buf := make([]byte, 9)
	buf[0] = _bangByte
	binary.BigEndian.PutUint64(buf[1:], ts)
	return string(buf)
}

// bangTs extracts the timestamp from a !-prefixed journal key. k must be the
// 9-byte form produced by bangKey.
func bangTs(k string) uint64 {
	return binary.BigEndian.Uint64([]byte(k)[1:9])
}

func tsBytes(ts uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, ts)
	return string(buf)
}

// versionEntry is one (Wts, Version) pair in a @key -> versions list.
type versionEntry struct {
	wts     uint64
	version uint64
}

func encodeVersions(versions []versionEntry) []byte {
	buf := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(buf)

	w := utils.NewErrorWriter(buf)
	w.Write(binary.BigEndian, uint32(len(versions)))
	for _, v := range versions {
		w.Write(binary.BigEndian, v.wts)
		w.Write(binary.BigEndian, v.version)
	}
	if w.Error() != nil {
		panic(w.Error())
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

func decodeVersions(data []byte) ([]versionEntry, error) {
	r := utils.NewErrorReader(bytes.NewReader(data))

	var count uint32
	r.Read(binary.BigEndian, &count)

	versions := make([]versionEntry, 0, count)
	for range count {
		var v versionEntry
		r.Read(binary.BigEndian, &v.wts)
		r.Read(binary.BigEndian, &v.version)
		versions = append(versions, v)
	}
	if err := r.Error(); err != nil {
		return nil, err
	}
	return versions, nil
}

func encodeWriteSet(keys []string) []byte {
	buf := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(buf)

	w := utils.NewErrorWriter(buf)
	w.Write(binary.BigEndian, uint32(len(keys)))
	for _, k := range keys {
		w.Write(binary.BigEndian, uint32(len(k)))
		w.Write(binary.BigEndian, []byte(k))
	}
	if w.Error() != nil {
		panic(w.Error())
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

func decodeWriteSet(data []byte) ([]string, error) {
	r := utils.NewErrorReader(bytes.NewReader(data))

	var count uint32
	r.Read(binary.BigEndian, &count)

	keys := make([]string, 0, count)
	for range count {
		var klen uint32
		r.Read(binary.BigEndian, &klen)
		kb := make([]byte, klen)
		r.Read(binary.BigEndian, kb)
		keys = append(keys, string(kb))
	}
	if err := r.Error(); err != nil {
		return nil, err
	}
	return keys, nil
}
