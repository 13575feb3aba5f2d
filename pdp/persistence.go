package pdp

import (
	"fmt"
	"os"
	"sync"

	"github.com/steveyen/gkvlite"

	"github.com/go-rtps/discovery/guid"
	"github.com/go-rtps/discovery/rtpserr"
)

const collectionName = "pdp-writer-history"

// Persistence is a gkvlite-backed store of a PDPServer's writer
// history, one file per server GUID, so a restarted server recovers
// the fleet view it had relayed instead of waiting on every client to
// re-announce (spec.md §4.3 "Persistence").
type Persistence struct {
	mu   sync.Mutex
	file *os.File
	kvst *gkvlite.Store
	coll *gkvlite.Collection
}

// OpenPersistence opens (creating if absent) the history file for a
// server identified by prefix.
func OpenPersistence(dir string, prefix guid.Prefix) (*Persistence, error) {
	path := fmt.Sprintf("%s/pdp-server-%s.gkvlite", dir, prefix.String())
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, rtpserr.New(rtpserr.ClassFatalInit, "pdp.OpenPersistence", err)
	}
	kvst, err := gkvlite.NewStore(file)
	if err != nil {
		file.Close()
		return nil, rtpserr.New(rtpserr.ClassFatalInit, "pdp.OpenPersistence", err)
	}
	coll := kvst.GetCollection(collectionName)
	if coll == nil {
		coll = kvst.SetCollection(collectionName, nil)
	}
	return &Persistence{file: file, kvst: kvst, coll: coll}, nil
}

// Put persists the current payload for instance inst, overwriting any
// prior entry.
func (p *Persistence) Put(inst guid.InstanceHandle, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.coll.Set(inst[:], payload); err != nil {
		return rtpserr.New(rtpserr.ClassTransientIO, "pdp.Persistence.Put", err)
	}
	if err := p.kvst.Flush(); err != nil {
		return rtpserr.New(rtpserr.ClassTransientIO, "pdp.Persistence.Put", err)
	}
	return p.file.Sync()
}

// Delete removes the persisted entry for inst, used once a demised
// instance has been fully trimmed from the writer history.
func (p *Persistence) Delete(inst guid.InstanceHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.coll.Delete(inst[:]); err != nil {
		return rtpserr.New(rtpserr.ClassTransientIO, "pdp.Persistence.Delete", err)
	}
	return p.kvst.Flush()
}

// LoadAll returns every persisted (instance, payload) pair, for
// recovering the fleet view on startup.
func (p *Persistence) LoadAll() (map[guid.InstanceHandle][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[guid.InstanceHandle][]byte)
	var visitErr error
	p.coll.VisitItemsAscend(nil, true, func(item *gkvlite.Item) bool {
		if len(item.Key) != guid.Len {
			visitErr = rtpserr.New(rtpserr.ClassPeerInconsistency, "pdp.Persistence.LoadAll", nil)
			return false
		}
		var inst guid.InstanceHandle
		copy(inst[:], item.Key)
		out[inst] = append([]byte{}, item.Val...)
		return true
	})
	if visitErr != nil {
		return nil, visitErr
	}
	return out, nil
}

// Close releases the underlying file.
func (p *Persistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kvst.Close()
	return p.file.Close()
}
