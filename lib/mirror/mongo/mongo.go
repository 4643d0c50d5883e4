// Package mongo implements the mirror interface for MongoDB.
//
// The external sync process maintains a `mirror` database with `blocks`, `transactions` and `txpool` collections plus
// a single status document it flips once the dataset is usable. This side only reads.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/capi/lib/mirror"
)

// Mongo implements a read connection to a MongoDB mirror database.
type Mongo struct {
	c *mgo.Client
}

// mongoBlock is the stored layout of one mirrored block.
type mongoBlock struct {
	Height int64  `bson:"height"`
	Hash   string `bson:"hash"`
	Header bson.M `bson:"header"`
	Block  bson.M `bson:"block"`
}

// mongoTx is the stored layout of one mirrored transaction.
type mongoTx struct {
	Hash      string `bson:"hash"`
	PaymentID string `bson:"paymentId"`
	Height    int64  `bson:"height"`
	Tx        bson.M `bson:"tx"`
}

// mongoStatus is the document the sync process maintains.
type mongoStatus struct {
	Ready      bool   `bson:"ready"`
	Height     int64  `bson:"height"`
	CurrencyID string `bson:"currencyId"`
}

// New returns a Mongo client connection to the specified MongoDB mirror uri.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	err = c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close the database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

func (m *Mongo) col(name string) *mgo.Collection {
	return m.c.Database("mirror").Collection(name)
}

func (m *Mongo) status() (mongoStatus, error) {
	var st mongoStatus

	sr := m.col("status").FindOne(context.Background(), bson.M{})
	if err := sr.Decode(&st); err != nil {
		if errors.Is(err, mgo.ErrNoDocuments) {
			return st, mirror.ErrNotReady
		}

		return st, fmt.Errorf("could not read mirror status: %w", err)
	}

	return st, nil
}

// Ready reports whether the sync process has marked the dataset usable.
func (m *Mongo) Ready() bool {
	st, err := m.status()

	return err == nil && st.Ready
}

// BlockCount returns the mirrored chain height plus one, the way daemons count blocks.
func (m *Mongo) BlockCount() (uint64, error) {
	st, err := m.status()
	if err != nil {
		return 0, err
	}

	if !st.Ready {
		return 0, mirror.ErrNotReady
	}

	return uint64(st.Height) + 1, nil
}

func (m *Mongo) findBlock(filter bson.M) (mongoBlock, error) {
	var b mongoBlock

	sr := m.col("blocks").FindOne(context.Background(), filter)
	if err := sr.Decode(&b); err != nil {
		if errors.Is(err, mgo.ErrNoDocuments) {
			return b, mirror.ErrNotFound
		}

		return b, fmt.Errorf("could not read mirror block: %w", err)
	}

	return b, nil
}

// Blocks returns up to mirror.BlockListLength block summaries walking down from the given height.
func (m *Mongo) Blocks(height uint64) ([]map[string]interface{}, error) {
	opts := options.Find().SetSort(bson.M{"height": -1}).SetLimit(mirror.BlockListLength)

	cur, err := m.col("blocks").Find(context.Background(), bson.M{"height": bson.M{"$lte": int64(height)}}, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list mirror blocks: %w", err)
	}
	defer cur.Close(context.Background())

	var list []map[string]interface{}

	for cur.Next(context.Background()) {
		var b mongoBlock
		if err = cur.Decode(&b); err != nil {
			return nil, fmt.Errorf("could not decode mirror block: %w", err)
		}

		list = append(list, map[string]interface{}(b.Header))
	}

	if len(list) == 0 {
		return nil, mirror.ErrNotFound
	}

	return list, nil
}

// Block returns the full mirrored block with the given hash.
func (m *Mongo) Block(hash string) (map[string]interface{}, error) {
	b, err := m.findBlock(bson.M{"hash": hash})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}(b.Block), nil
}

// BlockByHeight returns the full mirrored block at the given height.
func (m *Mongo) BlockByHeight(height uint64) (map[string]interface{}, error) {
	b, err := m.findBlock(bson.M{"height": int64(height)})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}(b.Block), nil
}

// TopHeader returns the header of the highest mirrored block.
func (m *Mongo) TopHeader() (map[string]interface{}, error) {
	var b mongoBlock

	opts := options.FindOne().SetSort(bson.M{"height": -1})

	sr := m.col("blocks").FindOne(context.Background(), bson.M{}, opts)
	if err := sr.Decode(&b); err != nil {
		if errors.Is(err, mgo.ErrNoDocuments) {
			return nil, mirror.ErrNotFound
		}

		return nil, fmt.Errorf("could not read mirror top header: %w", err)
	}

	return map[string]interface{}(b.Header), nil
}

// HeaderByHash returns the header of the block with the given hash.
func (m *Mongo) HeaderByHash(hash string) (map[string]interface{}, error) {
	b, err := m.findBlock(bson.M{"hash": hash})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}(b.Header), nil
}

// HeaderByHeight returns the header of the block at the given height.
func (m *Mongo) HeaderByHeight(height uint64) (map[string]interface{}, error) {
	b, err := m.findBlock(bson.M{"height": int64(height)})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}(b.Header), nil
}

// Transaction returns the mirrored transaction with the given hash.
func (m *Mongo) Transaction(hash string) (map[string]interface{}, error) {
	var t mongoTx

	sr := m.col("transactions").FindOne(context.Background(), bson.M{"hash": hash})
	if err := sr.Decode(&t); err != nil {
		if errors.Is(err, mgo.ErrNoDocuments) {
			return nil, mirror.ErrNotFound
		}

		return nil, fmt.Errorf("could not read mirror transaction: %w", err)
	}

	return map[string]interface{}(t.Tx), nil
}

// TransactionsByPaymentID returns every mirrored transaction tagged with the given payment id.
func (m *Mongo) TransactionsByPaymentID(id string) ([]map[string]interface{}, error) {
	cur, err := m.col("transactions").Find(context.Background(), bson.M{"paymentId": id})
	if err != nil {
		return nil, fmt.Errorf("could not list mirror transactions: %w", err)
	}
	defer cur.Close(context.Background())

	list := []map[string]interface{}{}

	for cur.Next(context.Background()) {
		var t mongoTx
		if err = cur.Decode(&t); err != nil {
			return nil, fmt.Errorf("could not decode mirror transaction: %w", err)
		}

		list = append(list, map[string]interface{}(t.Tx))
	}

	return list, nil
}

// TransactionPool returns the mirrored view of the pending transaction pool.
func (m *Mongo) TransactionPool() ([]map[string]interface{}, error) {
	cur, err := m.col("txpool").Find(context.Background(), bson.M{})
	if err != nil {
		return nil, fmt.Errorf("could not list mirror txpool: %w", err)
	}
	defer cur.Close(context.Background())

	list := []map[string]interface{}{}

	for cur.Next(context.Background()) {
		var t mongoTx
		if err = cur.Decode(&t); err != nil {
			return nil, fmt.Errorf("could not decode mirror txpool entry: %w", err)
		}

		list = append(list, map[string]interface{}(t.Tx))
	}

	return list, nil
}

// CurrencyID returns the currency id blob recorded by the sync process.
func (m *Mongo) CurrencyID() (string, error) {
	st, err := m.status()
	if err != nil {
		return "", err
	}

	if st.CurrencyID == "" {
		return "", mirror.ErrNotFound
	}

	return st.CurrencyID, nil
}
