package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/explorer/internal/service"
)

const (
	hashPattern    = `^0x[0-9a-fA-F]{64}$`
	addressPattern = `^0x[0-9a-fA-F]{40}$`

	// maxPageIndex keeps page*limit well inside int range.
	maxPageIndex = 1 << 20
)

type roomPayload struct {
	Room string `json:"room"`
}

type hashPayload struct {
	Hash string `json:"hash"`
}

type numberPayload struct {
	Number uint64 `json:"number"`
}

type pagePayload struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type addressPagePayload struct {
	Address string `json:"address"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

type addressPayload struct {
	Address string `json:"address"`
}

type tokenBalancePayload struct {
	Contract string `json:"contract"`
	Address  string `json:"address"`
}

type callPayload struct {
	To   string        `json:"to"`
	Data hexutil.Bytes `json:"data"`
}

type tickerPayload struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
}

// roomKey lower-cases identity rooms so they match the stored hash or
// address keys events are published under. Entity rooms are left as is.
func roomKey(room string) string {
	if len(room) > 2 && (room[:2] == "0x" || room[:2] == "0X") {
		return strings.ToLower(room)
	}
	return room
}

func objectSchema(required []string, props string) string {
	req := "[]"
	if len(required) > 0 {
		req = `["` + required[0]
		for _, r := range required[1:] {
			req += `","` + r
		}
		req += `"]`
	}
	return fmt.Sprintf(`{"type":"object","additionalProperties":false,"required":%s,"properties":{%s}}`, req, props)
}

func stringProp(name, pattern string) string {
	return fmt.Sprintf(`"%s":{"type":"string","pattern":%q}`, name, pattern)
}

func pageProps(maxPage int) string {
	return fmt.Sprintf(`"page":{"type":"integer","minimum":0,"maximum":%d},"limit":{"type":"integer","minimum":1,"maximum":%d}`,
		maxPageIndex, maxPage)
}

// Events returns the descriptors of every client request, backed by svcs.
// Page sizes above maxPage are rejected.
func Events(svcs *service.Services, maxPage int) ([]*Descriptor, error) {
	if maxPage <= 0 {
		maxPage = 100
	}

	var (
		descs []*Descriptor
		errs  []error
	)
	add := func(d *Descriptor, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		descs = append(descs, d)
	}

	roomSchema := objectSchema([]string{"room"}, `"room":{"type":"string","minLength":1,"maxLength":128}`)
	hashSchema := objectSchema([]string{"hash"}, stringProp("hash", hashPattern))
	pageSchema := objectSchema([]string{"limit"}, pageProps(maxPage))
	addressSchema := objectSchema([]string{"address"}, stringProp("address", addressPattern))

	add(Typed("join", roomSchema, func(_ context.Context, c *Conn, p roomPayload) (any, error) {
		c.Join(roomKey(p.Room))
		return nil, nil
	}))
	add(Typed("leave", roomSchema, func(_ context.Context, c *Conn, p roomPayload) (any, error) {
		c.Leave(roomKey(p.Room))
		return nil, nil
	}))

	add(Typed("getBlock", hashSchema, func(ctx context.Context, _ *Conn, p hashPayload) (any, error) {
		return svcs.Blocks.Get(ctx, strings.ToLower(p.Hash))
	}))
	add(Typed("getBlockByNumber",
		objectSchema([]string{"number"}, `"number":{"type":"integer","minimum":0}`),
		func(ctx context.Context, _ *Conn, p numberPayload) (any, error) {
			return svcs.Blocks.GetByNumber(ctx, p.Number)
		}))
	add(Typed("pastBlocks", pageSchema, func(ctx context.Context, _ *Conn, p pagePayload) (any, error) {
		return svcs.Blocks.Past(ctx, p.Page, p.Limit)
	}))
	add(Typed("getBlockTransactions", hashSchema, func(ctx context.Context, _ *Conn, p hashPayload) (any, error) {
		return svcs.Blocks.Transactions(ctx, strings.ToLower(p.Hash))
	}))

	add(Typed("getTx", hashSchema, func(ctx context.Context, _ *Conn, p hashPayload) (any, error) {
		return svcs.Txs.Get(ctx, strings.ToLower(p.Hash))
	}))
	add(Typed("pastTxs", pageSchema, func(ctx context.Context, _ *Conn, p pagePayload) (any, error) {
		return svcs.Txs.Past(ctx, p.Page, p.Limit)
	}))
	add(Typed("getAddressTxs",
		objectSchema([]string{"address", "limit"}, stringProp("address", addressPattern)+","+pageProps(maxPage)),
		func(ctx context.Context, _ *Conn, p addressPagePayload) (any, error) {
			return svcs.Txs.ByAddress(ctx, strings.ToLower(p.Address), p.Page, p.Limit)
		}))
	add(Typed("getTotalTxs", `{"type":["object","null"],"additionalProperties":false}`,
		func(ctx context.Context, _ *Conn, _ struct{}) (any, error) {
			return svcs.Txs.Total(ctx)
		}))
	add(Typed("pendingTxs", pageSchema, func(ctx context.Context, _ *Conn, p pagePayload) (any, error) {
		return svcs.Pending.Past(ctx, p.Page, p.Limit)
	}))

	add(Typed("getUncle", hashSchema, func(ctx context.Context, _ *Conn, p hashPayload) (any, error) {
		return svcs.Uncles.Get(ctx, strings.ToLower(p.Hash))
	}))
	add(Typed("pastUncles", pageSchema, func(ctx context.Context, _ *Conn, p pagePayload) (any, error) {
		return svcs.Uncles.Past(ctx, p.Page, p.Limit)
	}))

	add(Typed("getAccount", addressSchema, func(ctx context.Context, _ *Conn, p addressPayload) (any, error) {
		return svcs.Accounts.Get(ctx, strings.ToLower(p.Address))
	}))
	add(Typed("getBalance", addressSchema, func(ctx context.Context, _ *Conn, p addressPayload) (any, error) {
		return svcs.VM.Balance(ctx, strings.ToLower(p.Address))
	}))
	add(Typed("getTokenBalance",
		objectSchema([]string{"contract", "address"},
			stringProp("contract", addressPattern)+","+stringProp("address", addressPattern)),
		func(ctx context.Context, _ *Conn, p tokenBalancePayload) (any, error) {
			return svcs.VM.TokenBalance(ctx, strings.ToLower(p.Contract), strings.ToLower(p.Address))
		}))
	add(Typed("ethCall",
		objectSchema([]string{"to", "data"},
			stringProp("to", addressPattern)+","+stringProp("data", `^0x([0-9a-fA-F]{2})*$`)),
		func(ctx context.Context, _ *Conn, p callPayload) (any, error) {
			return svcs.VM.Call(ctx, strings.ToLower(p.To), p.Data)
		}))

	add(Typed("getTicker",
		objectSchema([]string{"symbol"},
			stringProp("symbol", `^[A-Za-z0-9]{1,16}$`)+","+stringProp("currency", `^[A-Za-z]{3,8}$`)),
		func(ctx context.Context, _ *Conn, p tickerPayload) (any, error) {
			if p.Currency == "" {
				p.Currency = "USD"
			}
			return svcs.Exchange.Ticker(ctx, p.Symbol, p.Currency)
		}))

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to build events: %v", errs)
	}
	return descs, nil
}
