// Package journal persists broadcast hazard alerts to an embedded bbolt
// file for later inspection. It records safety alerts only, never
// conversation content.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/golang/glog"
	"go.etcd.io/bbolt"

	"github.com/sensemesh/sensemesh/wire"
)

var bucketAlerts = []byte("hazard_alerts")

// Alert is one broadcast hazard event.
type Alert struct {
	Event     string       `json:"event"`
	Urgency   wire.Urgency `json:"urgency"`
	ProbeConn string       `json:"probe_conn,omitempty"`
	Ts        int64        `json:"ts"`
}

// Journal is an append-only alert log. A nil *Journal is valid and drops
// every append, so callers need no enabled-check.
type Journal struct {
	db *bbolt.DB
}

func Open(path string) (*Journal, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAlerts)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// Append records the alert keyed by timestamp plus the bucket sequence, so
// two alerts in the same nanosecond never overwrite each other. Journal
// failures are logged and swallowed: the broadcast already happened and
// must not depend on local disk health.
func (j *Journal) Append(a Alert) {
	if j == nil {
		return
	}
	if a.Ts == 0 {
		a.Ts = time.Now().UnixNano()
	}
	value, err := json.Marshal(a)
	if err != nil {
		glog.Errorf("journal: marshal alert: %v", err)
		return
	}
	err = j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAlerts)
		n, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 16)
		binary.BigEndian.PutUint64(key, uint64(a.Ts))
		binary.BigEndian.PutUint64(key[8:], n)
		return b.Put(key, value)
	})
	if err != nil {
		glog.Errorf("journal: append alert: %v", err)
	}
}

// Recent returns up to n alerts, newest first.
func (j *Journal) Recent(n int) ([]Alert, error) {
	if j == nil || n <= 0 {
		return nil, nil
	}
	var out []Alert
	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAlerts).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var a Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
