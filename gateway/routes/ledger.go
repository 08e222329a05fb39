package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"trovekit/core/decimal"
	coreerrors "trovekit/core/errors"
	"trovekit/native/stability"
	"trovekit/native/trove"
)

type priceResponse struct {
	Price         decimal.Decimal `json:"price"`
	BorrowingRate decimal.Decimal `json:"borrowingRate"`
}

type totalsResponse struct {
	Total              trove.Trove `json:"total"`
	TotalRedistributed trove.Trove `json:"totalRedistributed"`
	NumberOfTroves     uint64      `json:"numberOfTroves"`
}

type poolResponse struct {
	TotalDeposits decimal.Decimal        `json:"totalDeposits"`
	Accumulators  stability.Accumulators `json:"accumulators"`
}

func (h *handlers) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, h.timeout)
}

func (h *handlers) price(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r.Context())
	defer cancel()

	var resp priceResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		resp.Price, err = h.ledger.GetPrice(gctx)
		return err
	})
	g.Go(func() (err error) {
		resp.BorrowingRate, err = h.ledger.GetBorrowingRate(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) totals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r.Context())
	defer cancel()

	var resp totalsResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		resp.Total, err = h.ledger.GetTotal(gctx)
		return err
	})
	g.Go(func() (err error) {
		resp.TotalRedistributed, err = h.ledger.GetTotalRedistributed(gctx)
		return err
	})
	g.Go(func() (err error) {
		resp.NumberOfTroves, err = h.ledger.GetNumberOfTroves(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) troveCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r.Context())
	defer cancel()

	count, err := h.ledger.GetNumberOfTroves(ctx)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

func (h *handlers) trove(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := h.context(r.Context())
	defer cancel()

	userTrove, err := h.ledger.GetTrove(ctx, owner)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userTrove)
}

func (h *handlers) pendingTrove(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := h.context(r.Context())
	defer cancel()

	pending, err := h.ledger.GetTroveBeforeRedistribution(ctx, owner)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *handlers) pool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r.Context())
	defer cancel()

	var resp poolResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		resp.TotalDeposits, err = h.ledger.GetTotalDeposits(gctx)
		return err
	})
	g.Go(func() (err error) {
		resp.Accumulators, err = h.ledger.GetPoolAccumulators(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) stabilityDeposit(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := h.context(r.Context())
	defer cancel()

	deposit, err := h.ledger.GetStabilityDeposit(ctx, owner)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deposit)
}

// hint resolves an insertion position for ?collateral=&debt=[&owner=].
func (h *handlers) hint(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	collateral, err := decimal.Parse(query.Get("collateral"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("collateral: %w", err))
		return
	}
	debt, err := decimal.Parse(query.Get("debt"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("debt: %w", err))
		return
	}
	if collateral.IsNegative() || debt.IsNegative() || collateral.IsInfinite() || debt.IsInfinite() {
		writeJSONError(w, http.StatusBadRequest, errors.New("collateral and debt must be finite and not negative"))
		return
	}
	var owner common.Address
	if raw := strings.TrimSpace(query.Get("owner")); raw != "" {
		if owner, err = parseOwner(raw); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
	}
	ctx, cancel := h.context(r.Context())
	defer cancel()

	hint, err := h.ledger.ResolveHint(ctx, trove.New(collateral, debt), owner)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hint)
}

func ownerParam(r *http.Request) (common.Address, error) {
	return parseOwner(chi.URLParam(r, "owner"))
}

func parseOwner(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid owner address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// writeLedgerError maps read failures onto HTTP status codes.
func (h *handlers) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var hintErr *coreerrors.HintResolutionError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return
	case coreerrors.IsRemoteRead(err), coreerrors.IsParse(err), errors.As(err, &hintErr):
		status = http.StatusBadGateway
	}
	h.logger.Warn("ledger read failed", "path", r.URL.Path, "status", status, "error", err)
	writeJSONError(w, status, err)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
