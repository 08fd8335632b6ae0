package state

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/buntdb"

	"tradecore/internal/strategy"
)

type Position struct {
	Qty      int
	AvgEntry float64
}

type OpenOrder struct {
	ClientOrderID string
	OrderID       string
	Symbol        string
	Status        string
}

// Snapshot is the host's view of the run: broker-reconciled positions and
// orders plus each symbol's strategy state, the session it was last reset for
// and the session it last iterated in.
type Snapshot struct {
	Positions     map[string]Position
	OpenOrders    map[string]OpenOrder
	Strategies    map[string]strategy.Snapshot
	Sessions      map[string]string
	Iterations    map[string]string
	LastTradeTime time.Time
	LastBarTime   time.Time
}

func (s Snapshot) OpenOrdersFor(symbol string) int {
	count := 0
	for _, order := range s.OpenOrders {
		if order.Symbol == symbol {
			count++
		}
	}
	return count
}

type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewStore() *Store {
	return &Store{snapshot: emptySnapshot()}
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Positions:  map[string]Position{},
		OpenOrders: map[string]OpenOrder{},
		Strategies: map[string]strategy.Snapshot{},
		Sessions:   map[string]string{},
		Iterations: map[string]string{},
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() Snapshot {
	out := s.snapshot
	out.Positions = make(map[string]Position, len(s.snapshot.Positions))
	for k, v := range s.snapshot.Positions {
		out.Positions[k] = v
	}
	out.OpenOrders = make(map[string]OpenOrder, len(s.snapshot.OpenOrders))
	for k, v := range s.snapshot.OpenOrders {
		out.OpenOrders[k] = v
	}
	out.Strategies = make(map[string]strategy.Snapshot, len(s.snapshot.Strategies))
	for k, v := range s.snapshot.Strategies {
		out.Strategies[k] = v
	}
	out.Sessions = make(map[string]string, len(s.snapshot.Sessions))
	for k, v := range s.snapshot.Sessions {
		out.Sessions[k] = v
	}
	out.Iterations = make(map[string]string, len(s.snapshot.Iterations))
	for k, v := range s.snapshot.Iterations {
		out.Iterations[k] = v
	}
	return out
}

func (s *Store) UpdatePosition(symbol string, position Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Positions[symbol] = position
}

func (s *Store) SetOpenOrders(orders map[string]OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if orders == nil {
		orders = map[string]OpenOrder{}
	}
	s.snapshot.OpenOrders = orders
}

func (s *Store) AddOpenOrder(order OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.OpenOrders[order.ClientOrderID] = order
}

func (s *Store) SetStrategy(symbol string, snap strategy.Snapshot, session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Strategies[symbol] = snap
	s.snapshot.Sessions[symbol] = session
}

func (s *Store) SetIterated(symbol, session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Iterations[symbol] = session
}

func (s *Store) SetLastTradeTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastTradeTime = t
}

func (s *Store) SetLastBarTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastBarTime = t
}

const (
	positionPrefix = "position:"
	orderPrefix    = "order:"
	strategyPrefix = "strategy:"
	sessionPrefix  = "session:"
	iteratedPrefix = "iterated:"
	lastTradeKey   = "meta:last_trade_time"
	lastBarKey     = "meta:last_bar_time"
)

// Save replaces the checkpoint database at path with the current snapshot.
func (s *Store) Save(path string) error {
	snapshot := s.Snapshot()

	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *buntdb.Tx) error {
		if err := tx.DeleteAll(); err != nil {
			return err
		}
		for symbol, position := range snapshot.Positions {
			if err := setJSON(tx, positionPrefix+symbol, position); err != nil {
				return err
			}
		}
		for id, order := range snapshot.OpenOrders {
			if err := setJSON(tx, orderPrefix+id, order); err != nil {
				return err
			}
		}
		for symbol, snap := range snapshot.Strategies {
			if err := setJSON(tx, strategyPrefix+symbol, snap); err != nil {
				return err
			}
		}
		for symbol, session := range snapshot.Sessions {
			if _, _, err := tx.Set(sessionPrefix+symbol, session, nil); err != nil {
				return err
			}
		}
		for symbol, session := range snapshot.Iterations {
			if _, _, err := tx.Set(iteratedPrefix+symbol, session, nil); err != nil {
				return err
			}
		}
		if err := setJSON(tx, lastTradeKey, snapshot.LastTradeTime); err != nil {
			return err
		}
		return setJSON(tx, lastBarKey, snapshot.LastBarTime)
	})
}

// Load reads a checkpoint written by Save. A missing file is an error so the
// caller can tell a fresh start from a restore.
func (s *Store) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	snapshot := emptySnapshot()
	err = db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		scan := func(prefix string, fn func(name, value string) error) error {
			err := tx.AscendKeys(prefix+"*", func(key, value string) bool {
				decodeErr = fn(strings.TrimPrefix(key, prefix), value)
				return decodeErr == nil
			})
			if err != nil {
				return err
			}
			return decodeErr
		}

		if err := scan(positionPrefix, func(symbol, value string) error {
			var position Position
			if err := json.Unmarshal([]byte(value), &position); err != nil {
				return fmt.Errorf("position %s: %w", symbol, err)
			}
			snapshot.Positions[symbol] = position
			return nil
		}); err != nil {
			return err
		}
		if err := scan(orderPrefix, func(id, value string) error {
			var order OpenOrder
			if err := json.Unmarshal([]byte(value), &order); err != nil {
				return fmt.Errorf("order %s: %w", id, err)
			}
			snapshot.OpenOrders[id] = order
			return nil
		}); err != nil {
			return err
		}
		if err := scan(strategyPrefix, func(symbol, value string) error {
			var snap strategy.Snapshot
			if err := json.Unmarshal([]byte(value), &snap); err != nil {
				return fmt.Errorf("strategy %s: %w", symbol, err)
			}
			snapshot.Strategies[symbol] = snap
			return nil
		}); err != nil {
			return err
		}
		if err := scan(sessionPrefix, func(symbol, value string) error {
			snapshot.Sessions[symbol] = value
			return nil
		}); err != nil {
			return err
		}
		if err := scan(iteratedPrefix, func(symbol, value string) error {
			snapshot.Iterations[symbol] = value
			return nil
		}); err != nil {
			return err
		}
		if err := getJSON(tx, lastTradeKey, &snapshot.LastTradeTime); err != nil {
			return err
		}
		return getJSON(tx, lastBarKey, &snapshot.LastBarTime)
	})
	if err != nil {
		return fmt.Errorf("load checkpoint %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	return nil
}

func openDB(path string) (*buntdb.DB, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	if err := db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.Always,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    32 * 1024 * 1024,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure checkpoint %s: %w", path, err)
	}
	return db, nil
}

func setJSON(tx *buntdb.Tx, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, _, err = tx.Set(key, string(data), nil)
	return err
}

func getJSON(tx *buntdb.Tx, key string, out any) error {
	value, err := tx.Get(key)
	if err == buntdb.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), out)
}
