// Package postgres implements the mirror interface for PostgreSQL.
//
// The external sync process maintains mirror_blocks, mirror_transactions and mirror_txpool tables with the raw JSON
// documents in text columns, plus a one-row mirror_status table it updates as it advances.
package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" //nolint:gci // load the postgres driver that is used by the system

	"github.com/tarancss/capi/lib/mirror"
)

// Postgres implements a read connection to a PostgreSQL mirror database.
type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection'.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close the database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

func (p *Postgres) status() (ready bool, height int64, currency string, err error) {
	err = p.db.QueryRow(`SELECT ready, height, currency_id FROM mirror_status LIMIT 1`).
		Scan(&ready, &height, &currency)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, "", mirror.ErrNotReady
	}

	if err != nil {
		return false, 0, "", fmt.Errorf("could not read mirror status: %w", err)
	}

	return ready, height, currency, nil
}

// Ready reports whether the sync process has marked the dataset usable.
func (p *Postgres) Ready() bool {
	ready, _, _, err := p.status()

	return err == nil && ready
}

// BlockCount returns the mirrored chain height plus one, the way daemons count blocks.
func (p *Postgres) BlockCount() (uint64, error) {
	ready, height, _, err := p.status()
	if err != nil {
		return 0, err
	}

	if !ready {
		return 0, mirror.ErrNotReady
	}

	return uint64(height) + 1, nil
}

// decodeDoc unmarshals a stored JSON column into a map.
func decodeDoc(raw []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("could not decode mirror document: %w", err)
	}

	return m, nil
}

func (p *Postgres) blockColumn(column, where string, arg interface{}) (map[string]interface{}, error) {
	var raw []byte

	err := p.db.QueryRow(`SELECT `+column+` FROM mirror_blocks WHERE `+where+` = $1`, arg).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mirror.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("could not read mirror block: %w", err)
	}

	return decodeDoc(raw)
}

// Blocks returns up to mirror.BlockListLength block summaries walking down from the given height.
func (p *Postgres) Blocks(height uint64) ([]map[string]interface{}, error) {
	rows, err := p.db.Query(
		`SELECT header FROM mirror_blocks WHERE height <= $1 ORDER BY height DESC LIMIT $2`,
		int64(height), mirror.BlockListLength)
	if err != nil {
		return nil, fmt.Errorf("could not list mirror blocks: %w", err)
	}
	defer rows.Close()

	var list []map[string]interface{}

	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("could not scan mirror block: %w", err)
		}

		m, errDec := decodeDoc(raw)
		if errDec != nil {
			return nil, errDec
		}

		list = append(list, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("could not list mirror blocks: %w", err)
	}

	if len(list) == 0 {
		return nil, mirror.ErrNotFound
	}

	return list, nil
}

// Block returns the full mirrored block with the given hash.
func (p *Postgres) Block(hash string) (map[string]interface{}, error) {
	return p.blockColumn("body", "hash", hash)
}

// BlockByHeight returns the full mirrored block at the given height.
func (p *Postgres) BlockByHeight(height uint64) (map[string]interface{}, error) {
	return p.blockColumn("body", "height", int64(height))
}

// TopHeader returns the header of the highest mirrored block.
func (p *Postgres) TopHeader() (map[string]interface{}, error) {
	var raw []byte

	err := p.db.QueryRow(`SELECT header FROM mirror_blocks ORDER BY height DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mirror.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("could not read mirror top header: %w", err)
	}

	return decodeDoc(raw)
}

// HeaderByHash returns the header of the block with the given hash.
func (p *Postgres) HeaderByHash(hash string) (map[string]interface{}, error) {
	return p.blockColumn("header", "hash", hash)
}

// HeaderByHeight returns the header of the block at the given height.
func (p *Postgres) HeaderByHeight(height uint64) (map[string]interface{}, error) {
	return p.blockColumn("header", "height", int64(height))
}

// Transaction returns the mirrored transaction with the given hash.
func (p *Postgres) Transaction(hash string) (map[string]interface{}, error) {
	var raw []byte

	err := p.db.QueryRow(`SELECT body FROM mirror_transactions WHERE hash = $1`, hash).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mirror.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("could not read mirror transaction: %w", err)
	}

	return decodeDoc(raw)
}

// TransactionsByPaymentID returns every mirrored transaction tagged with the given payment id.
func (p *Postgres) TransactionsByPaymentID(id string) ([]map[string]interface{}, error) {
	return p.txList(`SELECT body FROM mirror_transactions WHERE payment_id = $1`, id)
}

// TransactionPool returns the mirrored view of the pending transaction pool.
func (p *Postgres) TransactionPool() ([]map[string]interface{}, error) {
	return p.txList(`SELECT body FROM mirror_txpool`)
}

func (p *Postgres) txList(query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list mirror transactions: %w", err)
	}
	defer rows.Close()

	list := []map[string]interface{}{}

	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("could not scan mirror transaction: %w", err)
		}

		m, errDec := decodeDoc(raw)
		if errDec != nil {
			return nil, errDec
		}

		list = append(list, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("could not list mirror transactions: %w", err)
	}

	return list, nil
}

// CurrencyID returns the currency id blob recorded by the sync process.
func (p *Postgres) CurrencyID() (string, error) {
	_, _, currency, err := p.status()
	if err != nil {
		return "", err
	}

	if currency == "" {
		return "", mirror.ErrNotFound
	}

	return currency, nil
}
