package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/OdyseeTeam/fast-wallet/blockchain"
	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/lbryio/lbcutil"
	"github.com/sirupsen/logrus"
)

// Store is the read side of the wallet storage.
type Store interface {
	Block(stale bool, order blockchain.Order) (*model.Block, error)
	BlocksByStale(stale bool) ([]model.Block, error)
	AllUnspentOutputs() ([]model.UnspentOutput, error)
	Claims() ([]model.UnspentOutput, error)
	Purchases() ([]model.UnspentOutput, error)
	Balance() (int64, error)
}

type Server struct {
	store Store
	http  *http.Server
}

func New(addr string, store Store) *Server {
	s := &Server{store: store}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/tip", s.tip())
	mux.Handle("/blocks/stale", s.staleBlocks())
	mux.Handle("/balance", s.balance())
	mux.Handle("/utxos", s.outputs(s.store.AllUnspentOutputs))
	mux.Handle("/claims", s.outputs(s.store.Claims))
	mux.Handle("/purchases", s.outputs(s.store.Purchases))
	return mux
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		logrus.Infof("serving on %s", s.http.Addr)
		errs <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.WithStack(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	if err != nil {
		return errors.WithStack(err)
	}
	<-errs
	return nil
}

type blockJSON struct {
	Hash      string `json:"hash"`
	PrevHash  string `json:"prev_hash"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
	Stale     bool   `json:"stale"`
}

func toBlockJSON(b model.Block) blockJSON {
	return blockJSON{
		Hash:      b.Hash.String(),
		PrevHash:  b.PrevHash.String(),
		Height:    b.Height,
		Timestamp: b.Timestamp.Unix(),
		Stale:     b.Stale,
	}
}

type utxoJSON struct {
	Outpoint          string `json:"outpoint"`
	Value             int64  `json:"value"`
	ScriptType        string `json:"script_type"`
	KeyHash           string `json:"key_hash,omitempty"`
	ClaimID           string `json:"claim_id,omitempty"`
	PurchaseClaimHash string `json:"purchase_claim_hash,omitempty"`
}

type balanceJSON struct {
	Balance int64  `json:"balance"`
	LBC     string `json:"lbc"`
}

func (s *Server) tip() http.Handler {
	return get(func() (interface{}, error) {
		tip, err := s.store.Block(false, blockchain.Descending)
		if err != nil || tip == nil {
			return nil, err
		}
		return toBlockJSON(*tip), nil
	})
}

func (s *Server) staleBlocks() http.Handler {
	return get(func() (interface{}, error) {
		blocks, err := s.store.BlocksByStale(true)
		if err != nil {
			return nil, err
		}
		out := make([]blockJSON, 0, len(blocks))
		for _, b := range blocks {
			out = append(out, toBlockJSON(b))
		}
		return out, nil
	})
}

func (s *Server) balance() http.Handler {
	return get(func() (interface{}, error) {
		balance, err := s.store.Balance()
		if err != nil {
			return nil, err
		}
		return balanceJSON{Balance: balance, LBC: lbcutil.Amount(balance).String()}, nil
	})
}

func (s *Server) outputs(list func() ([]model.UnspentOutput, error)) http.Handler {
	return get(func() (interface{}, error) {
		utxos, err := list()
		if err != nil {
			return nil, err
		}
		out := make([]utxoJSON, 0, len(utxos))
		for _, u := range utxos {
			out = append(out, utxoJSON{
				Outpoint:          u.Outpoint(),
				Value:             u.Value,
				ScriptType:        u.Type.String(),
				KeyHash:           hex.EncodeToString(u.KeyHash),
				ClaimID:           u.ClaimID,
				PurchaseClaimHash: u.PurchaseClaimHash,
			})
		}
		return out, nil
	})
}

// get wraps a read in a GET-only JSON handler. A nil result is a 404.
func get(read func() (interface{}, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		result, err := read()
		if err != nil {
			logrus.Errorf("%s: %+v", r.URL.Path, err)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(err.Error()))
			return
		}
		if result == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		b, err := json.Marshal(result)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(err.Error()))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})
}
