package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/runeindex/runeindexd/internal/runestone"
	"github.com/runeindex/runeindexd/internal/store"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]string{"message": "runeindexd read api"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]string{"status": "ok"})
}

// handleReadyz reports the indexer's cursor height alongside the source
// node's reported tip, so an operator can tell a stalled indexer apart
// from a healthy one that is simply waiting on a new block (spec §12
// "so an operator or load balancer can tell the read API apart from
// 'indexer stalled'").
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	cursor, ok, err := s.store.Cursor()
	if err != nil {
		internalError(w, err.Error())
		return
	}

	resp := map[string]interface{}{"cursor": cursor, "has_indexed": ok}

	if s.rpc != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if tip, err := s.rpc.GetBlockCount(ctx); err == nil {
			resp["tip"] = tip
		}
	}

	writeData(w, resp)
}

func (s *Server) handleListRunes(w http.ResponseWriter, r *http.Request) {
	var out []*runeEntryView
	err := s.store.ListRuneEntries(func(e *store.RuneEntry) error {
		out = append(out, newRuneEntryView(e))
		return nil
	})
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeData(w, out)
}

func (s *Server) handleRuneByID(w http.ResponseWriter, r *http.Request) {
	id, err := runestone.ParseRuneId(r.PathValue("rune_id"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	entry, err := s.store.GetRuneEntry(id)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "rune not found")
		return
	}
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeData(w, newRuneEntryView(entry))
}

func (s *Server) handleRuneByName(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.GetRuneEntryByName(r.PathValue("raw_name"))
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "rune not found")
		return
	}
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeData(w, newRuneEntryView(entry))
}

func (s *Server) handleRuneUTXO(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("tx_id")
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 32)
	if err != nil {
		badRequest(w, "index must be a non-negative integer")
		return
	}
	rows, err := s.store.GetRuneTXOsAtOutpoint(txID, uint32(index))
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeData(w, newRuneTXOViews(rows))
}

func (s *Server) handleBalanceList(w http.ResponseWriter, r *http.Request) {
	totals, err := s.store.BalanceList(r.PathValue("address"))
	if err != nil {
		internalError(w, err.Error())
		return
	}
	out := make(map[string]string, len(totals))
	for id, amount := range totals {
		out[id.String()] = bigString(amount)
	}
	writeData(w, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := runestone.ParseRuneId(r.PathValue("rune_id"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	amount, err := s.store.Balance(r.PathValue("address"), id)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeData(w, bigString(amount))
}

func (s *Server) handleAddressUTXO(w http.ResponseWriter, r *http.Request) {
	id, err := runestone.ParseRuneId(r.PathValue("rune_id"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	rows, err := s.store.UnspentByAddressAndRune(r.PathValue("address"), id)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeData(w, newRuneTXOViews(rows))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	var out []*transactionView
	err := s.store.ListTransactions(func(t *store.TransactionRecord) error {
		out = append(out, newTransactionView(t))
		return nil
	})
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeData(w, out)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("tx_id")
	t, err := s.store.GetTransaction(txID)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "transaction not found")
		return
	}
	if err != nil {
		internalError(w, err.Error())
		return
	}

	view := newTransactionView(t)

	inputs, err := s.store.RuneTXOsSpentByTx(txID)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	view.Inputs = newRuneTXOViews(inputs)

	outputs, err := s.store.RuneTXOsByTx(txID)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	view.Outputs = newRuneTXOViews(outputs)

	writeData(w, view)
}
