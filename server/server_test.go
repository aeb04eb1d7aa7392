package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OdyseeTeam/fast-wallet/blockchain"
	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	blocks    []model.Block
	utxos     []model.UnspentOutput
	claims    []model.UnspentOutput
	purchases []model.UnspentOutput
	err       error
}

func (f *fakeStore) Block(stale bool, order blockchain.Order) (*model.Block, error) {
	var found *model.Block
	for i := range f.blocks {
		b := f.blocks[i]
		if b.Stale != stale {
			continue
		}
		if found == nil || (order == blockchain.Descending && b.Height > found.Height) ||
			(order == blockchain.Ascending && b.Height < found.Height) {
			found = &b
		}
	}
	return found, f.err
}

func (f *fakeStore) BlocksByStale(stale bool) ([]model.Block, error) {
	var out []model.Block
	for _, b := range f.blocks {
		if b.Stale == stale {
			out = append(out, b)
		}
	}
	return out, f.err
}

func (f *fakeStore) AllUnspentOutputs() ([]model.UnspentOutput, error) { return f.utxos, f.err }

func (f *fakeStore) Claims() ([]model.UnspentOutput, error) { return f.claims, f.err }

func (f *fakeStore) Purchases() ([]model.UnspentOutput, error) { return f.purchases, f.err }

func (f *fakeStore) Balance() (int64, error) {
	var total int64
	for _, u := range f.utxos {
		total += u.Value
	}
	return total, f.err
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestEndpoints(t *testing.T) {
	store := &fakeStore{
		blocks: []model.Block{
			{Hash: chainhash.Hash{1}, Height: 1, Timestamp: time.Unix(1600000001, 0)},
			{Hash: chainhash.Hash{2}, PrevHash: chainhash.Hash{1}, Height: 2, Timestamp: time.Unix(1600000002, 0)},
			{Hash: chainhash.Hash{3}, PrevHash: chainhash.Hash{1}, Height: 2, Stale: true},
		},
		utxos: []model.UnspentOutput{
			{Output: model.Output{Value: 150000000, Index: 1, Type: model.P2PKH, KeyHash: []byte{0xab}}, TransactionHash: chainhash.Hash{9}},
		},
	}
	s := New(":0", store)

	rec := serve(t, s, http.MethodGet, "/tip")
	require.Equal(t, http.StatusOK, rec.Code)
	var tip blockJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tip))
	require.Equal(t, chainhash.Hash{2}.String(), tip.Hash)
	require.Equal(t, 2, tip.Height)
	require.EqualValues(t, 1600000002, tip.Timestamp)
	require.False(t, tip.Stale)

	rec = serve(t, s, http.MethodGet, "/blocks/stale")
	require.Equal(t, http.StatusOK, rec.Code)
	var stale []blockJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stale))
	require.Len(t, stale, 1)
	require.Equal(t, chainhash.Hash{3}.String(), stale[0].Hash)

	rec = serve(t, s, http.MethodGet, "/balance")
	require.Equal(t, http.StatusOK, rec.Code)
	var balance balanceJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	require.EqualValues(t, 150000000, balance.Balance)
	require.Contains(t, balance.LBC, "1.5")

	rec = serve(t, s, http.MethodGet, "/utxos")
	require.Equal(t, http.StatusOK, rec.Code)
	var utxos []utxoJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &utxos))
	require.Len(t, utxos, 1)
	require.Equal(t, chainhash.Hash{9}.String()+":1", utxos[0].Outpoint)
	require.Equal(t, "p2pkh", utxos[0].ScriptType)
	require.Equal(t, "ab", utxos[0].KeyHash)
	require.Empty(t, utxos[0].ClaimID)
	require.NotContains(t, rec.Body.String(), "claim_id")
}

func TestClaimAndPurchaseOutputs(t *testing.T) {
	claimID := "3e3a8f32bc49a7a1ad48b7a2a0d0c7e15d2d36ae"
	purchased := "fc4b9f1a2d527cb45a3b390c8a67cb0c2f29fbb5"
	store := &fakeStore{
		claims: []model.UnspentOutput{
			{Output: model.Output{Value: 100000, Type: model.P2PKH, KeyHash: []byte{0xab}, Stake: true, ClaimID: claimID}, TransactionHash: chainhash.Hash{8}},
		},
		purchases: []model.UnspentOutput{
			{Output: model.Output{Index: 1, PurchaseClaimHash: purchased}, TransactionHash: chainhash.Hash{9}},
		},
	}
	s := New(":0", store)

	rec := serve(t, s, http.MethodGet, "/claims")
	require.Equal(t, http.StatusOK, rec.Code)
	var claims []utxoJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claims))
	require.Len(t, claims, 1)
	require.Equal(t, claimID, claims[0].ClaimID)
	require.Equal(t, chainhash.Hash{8}.String()+":0", claims[0].Outpoint)
	require.EqualValues(t, 100000, claims[0].Value)

	rec = serve(t, s, http.MethodGet, "/purchases")
	require.Equal(t, http.StatusOK, rec.Code)
	var purchases []utxoJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &purchases))
	require.Len(t, purchases, 1)
	require.Equal(t, purchased, purchases[0].PurchaseClaimHash)
	require.Empty(t, purchases[0].KeyHash)

	// claims are not offered as spendable outputs
	rec = serve(t, s, http.MethodGet, "/utxos")
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestEmptyStore(t *testing.T) {
	s := New(":0", &fakeStore{})

	require.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/tip").Code)

	rec := serve(t, s, http.MethodGet, "/utxos")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestErrorsAndMethods(t *testing.T) {
	s := New(":0", &fakeStore{err: errors.New("db closed")})

	rec := serve(t, s, http.MethodGet, "/balance")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "db closed")

	require.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodPost, "/balance").Code)
}
