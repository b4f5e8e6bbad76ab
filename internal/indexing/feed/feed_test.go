package feed

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/explorer/internal/core/domain"
)

func TestNormalize(t *testing.T) {
	doc := json.RawMessage(`{"hash":"0x1"}`)

	tests := []struct {
		name    string
		change  Change
		wantOp  domain.Operation
		wantErr bool
		payload bool
	}{
		{name: "insert", change: Change{Seq: 1, Op: "insert", Key: "0x1", Document: doc}, wantOp: domain.OpInsert, payload: true},
		{name: "update", change: Change{Seq: 2, Op: "update", Key: "0x1", Document: doc}, wantOp: domain.OpUpdate, payload: true},
		{name: "replace is update", change: Change{Seq: 3, Op: "replace", Key: "0x1", Document: doc}, wantOp: domain.OpUpdate, payload: true},
		{name: "trigger op case", change: Change{Seq: 4, Op: "INSERT", Key: "0x1", Document: doc}, wantOp: domain.OpInsert, payload: true},
		{name: "delete drops document", change: Change{Seq: 5, Op: "delete", Key: "0x1", Document: doc}, wantOp: domain.OpDelete},
		{name: "delete without document", change: Change{Seq: 6, Op: "DELETE", Key: "0x1"}, wantOp: domain.OpDelete},
		{name: "unknown op", change: Change{Seq: 7, Op: "invalidate", Key: "0x1"}, wantErr: true},
		{name: "missing key", change: Change{Seq: 8, Op: "insert", Document: doc}, wantErr: true},
		{name: "insert without document", change: Change{Seq: 9, Op: "insert", Key: "0x1"}, wantErr: true},
		{name: "update with null document", change: Change{Seq: 10, Op: "update", Key: "0x1", Document: json.RawMessage("null")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Normalize(domain.EntityBlock, &tt.change)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrDataIntegrity))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOp, ev.Op)
			assert.Equal(t, domain.EntityBlock, ev.Entity)
			assert.Equal(t, "0x1", ev.Key)
			assert.Equal(t, tt.change.Seq, ev.Seq)
			if tt.payload {
				assert.JSONEq(t, string(doc), string(ev.Payload))
			} else {
				assert.Nil(t, ev.Payload)
			}
		})
	}
}
