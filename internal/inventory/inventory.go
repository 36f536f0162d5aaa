package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/markusressel/tachmon/internal/ui"
	"github.com/natefinch/atomic"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketObjects = "objects"

	InterfaceItem              = "Inventory.Item"
	InterfaceOperationalStatus = "Inventory.OperationalStatus"

	PropertyPresent    = "Present"
	PropertyFunctional = "Functional"
)

var ErrNotFound = errors.New("inventory object or property not found")

// Event describes a change to an inventory object.
// Added is true when the object was published for the first time, in
// which case Interfaces carries the full interface map of the object.
// Otherwise Interfaces only carries the changed properties.
type Event struct {
	Object     string
	Added      bool
	Interfaces map[string]map[string]interface{}
}

// Inventory is the store of hardware presence and health state.
// tachmon publishes to it but does not own it, presence is written
// by an external presence daemon through the same Notify surface.
type Inventory interface {
	Init() error

	// Notify publishes a map of object path -> interface -> property -> value
	Notify(objects map[string]map[string]map[string]interface{}) error

	// GetProperty returns the current value of a single property
	GetProperty(object string, iface string, property string) (interface{}, error)

	// Subscribe returns a channel of change events for all objects
	Subscribe() <-chan Event

	// ExportSnapshot writes the full inventory content to path as JSON
	ExportSnapshot(path string) error
}

type inventory struct {
	dbPath string

	mu          sync.Mutex
	subscribers []chan Event
}

func NewInventory(dbPath string) Inventory {
	return &inventory{
		dbPath: dbPath,
	}
}

func (i *inventory) Init() (err error) {
	parentDir := filepath.Dir(i.dbPath)
	_, err = os.Stat(parentDir)
	if errors.Is(err, os.ErrNotExist) {
		ui.Info("Creating directory for inventory db: %s", parentDir)
		err = os.MkdirAll(parentDir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}

func (i *inventory) openInventory() (db *bolt.DB, err error) {
	db, err = bolt.Open(i.dbPath, 0600, &bolt.Options{Timeout: 1 * time.Minute})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (i *inventory) Notify(objects map[string]map[string]map[string]interface{}) error {
	db, err := i.openInventory()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var events []Event

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketObjects))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}

		for object, interfaces := range objects {
			current := map[string]map[string]interface{}{}
			added := true

			v := b.Get([]byte(object))
			if v != nil {
				if err := json.Unmarshal(v, &current); err != nil {
					// if we cannot read the saved data, overwrite it
					ui.Warning("Unable to unmarshal inventory object %s: %v", object, err)
				} else {
					added = false
				}
			}

			for iface, properties := range interfaces {
				if current[iface] == nil {
					current[iface] = map[string]interface{}{}
				}
				for property, value := range properties {
					current[iface][property] = value
				}
			}

			data, err := json.Marshal(current)
			if err != nil {
				return err
			}
			if err = b.Put([]byte(object), data); err != nil {
				return err
			}

			eventInterfaces := interfaces
			if added {
				eventInterfaces = current
			}
			events = append(events, Event{
				Object:     object,
				Added:      added,
				Interfaces: eventInterfaces,
			})
		}

		return nil
	})
	if err != nil {
		return err
	}

	i.publish(events)
	return nil
}

func (i *inventory) GetProperty(object string, iface string, property string) (interface{}, error) {
	db, err := i.openInventory()
	if err != nil {
		return nil, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var value interface{}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketObjects))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(object))
		if v == nil {
			return ErrNotFound
		}

		var interfaces map[string]map[string]interface{}
		if err := json.Unmarshal(v, &interfaces); err != nil {
			return err
		}

		properties, ok := interfaces[iface]
		if !ok {
			return ErrNotFound
		}
		value, ok = properties[property]
		if !ok {
			return ErrNotFound
		}
		return nil
	})

	return value, err
}

func (i *inventory) Subscribe() <-chan Event {
	i.mu.Lock()
	defer i.mu.Unlock()

	channel := make(chan Event, 64)
	i.subscribers = append(i.subscribers, channel)
	return channel
}

func (i *inventory) publish(events []Event) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, event := range events {
		for _, subscriber := range i.subscribers {
			select {
			case subscriber <- event:
			default:
				ui.Warning("Inventory subscriber is not keeping up, dropping event for %s", event.Object)
			}
		}
	}
}

func (i *inventory) ExportSnapshot(path string) error {
	db, err := i.openInventory()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	snapshot := map[string]map[string]map[string]interface{}{}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketObjects))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var interfaces map[string]map[string]interface{}
			if err := json.Unmarshal(v, &interfaces); err != nil {
				return err
			}
			snapshot[string(k)] = interfaces
			return nil
		})
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	return atomic.WriteFile(path, strings.NewReader(string(data)))
}

// PresentFromEvent extracts the Present property out of an event's
// interface map, if it carries one.
func PresentFromEvent(event Event) (present bool, ok bool) {
	properties, ok := event.Interfaces[InterfaceItem]
	if !ok {
		return false, false
	}
	value, ok := properties[PropertyPresent]
	if !ok {
		return false, false
	}
	present, ok = value.(bool)
	return present, ok
}
