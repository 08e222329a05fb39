package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"trovekit/native/trove"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsQueueSize    = 8
)

var errSlowConsumer = errors.New("watch: client too slow")

// watchTrove streams the owner's trove: the current value first, then one
// frame per coalesced change until either side closes.
func (h *handlers) watchTrove(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// The client only ever sends control frames.
	ctx := conn.CloseRead(r.Context())
	if err := h.streamTrove(ctx, conn, owner); err != nil && websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
		h.logger.Warn("trove stream failed", "owner", owner.Hex(), "error", err)
		reason := "stream error"
		if errors.Is(err, errSlowConsumer) {
			reason = errSlowConsumer.Error()
		}
		_ = conn.Close(websocket.StatusInternalError, reason)
	}
}

func (h *handlers) streamTrove(ctx context.Context, conn *websocket.Conn, owner common.Address) error {
	updates := make(chan trove.UserTrove, wsQueueSize)
	overflow := make(chan struct{})
	var overflowed bool
	sub, err := h.ledger.WatchTrove(ctx, owner, func(u trove.UserTrove) {
		select {
		case updates <- u:
		default:
			if !overflowed {
				overflowed = true
				close(overflow)
			}
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	readCtx, cancel := h.context(ctx)
	current, err := h.ledger.GetTrove(readCtx, owner)
	cancel()
	if err != nil {
		return err
	}
	if err := writeFrame(ctx, conn, current); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return nil
		case <-overflow:
			return errSlowConsumer
		case update := <-updates:
			if err := writeFrame(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, payload trove.UserTrove) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, payload)
}
