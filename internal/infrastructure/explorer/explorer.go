package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 15 * time.Second
	// esplora pages confirmed txs by this size
	chainPageSize = 25
)

type spentStatus struct {
	Spent   bool   `json:"spent"`
	SpentBy string `json:"txid,omitempty"`
}

type tx struct {
	Txid string `json:"txid"`
	Vout []struct {
		Address string `json:"scriptpubkey_address"`
		Amount  uint64 `json:"value"`
	} `json:"vout"`
	Status struct {
		Confirmed bool  `json:"confirmed"`
		Blocktime int64 `json:"block_time"`
	} `json:"status"`
}

type explorer struct {
	baseUrl string
	client  *http.Client
}

// NewExplorer returns an esplora client for the given base url.
func NewExplorer(baseUrl string) (ports.Explorer, error) {
	if len(baseUrl) <= 0 {
		return nil, fmt.Errorf("missing explorer url")
	}
	if _, err := url.ParseRequestURI(baseUrl); err != nil {
		return nil, fmt.Errorf("invalid explorer url: %s", err)
	}

	return &explorer{
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (e *explorer) BaseURL() string {
	return e.baseUrl
}

// FindOutpoints lists every output paid to the address, along with its
// confirmation and spent status.
func (e *explorer) FindOutpoints(ctx context.Context, address string) ([]domain.ExplorerUtxo, error) {
	txs, err := e.getTxs(ctx, address)
	if err != nil {
		return nil, err
	}

	utxos := make([]domain.ExplorerUtxo, 0)
	for _, tx := range txs {
		var spentStatuses []spentStatus
		for vout, out := range tx.Vout {
			if out.Address != address {
				continue
			}

			if spentStatuses == nil {
				spentStatuses, err = e.getOutspends(ctx, tx.Txid)
				if err != nil {
					return nil, err
				}
			}

			utxo := domain.ExplorerUtxo{
				Outpoint:  domain.Outpoint{Txid: tx.Txid, VOut: uint32(vout)},
				Amount:    out.Amount,
				Confirmed: tx.Status.Confirmed,
			}
			if tx.Status.Confirmed {
				utxo.ConfirmedAt = time.Unix(tx.Status.Blocktime, 0)
			}
			if vout < len(spentStatuses) {
				utxo.Spent = spentStatuses[vout].Spent
			}
			utxos = append(utxos, utxo)
		}
	}

	log.Debugf("found %d outputs for address %s", len(utxos), address)
	return utxos, nil
}

// getTxs returns the mempool txs of the address followed by all its
// confirmed ones, walking the chain pages until a short one.
func (e *explorer) getTxs(ctx context.Context, addr string) ([]tx, error) {
	endpoint, err := url.JoinPath(e.baseUrl, "address", addr, "txs")
	if err != nil {
		return nil, err
	}

	txs := make([]tx, 0)
	if err := e.get(ctx, endpoint, &txs); err != nil {
		return nil, err
	}

	confirmed := 0
	lastSeen := ""
	for _, tx := range txs {
		if tx.Status.Confirmed {
			confirmed++
			lastSeen = tx.Txid
		}
	}

	for confirmed >= chainPageSize {
		endpoint, err := url.JoinPath(e.baseUrl, "address", addr, "txs", "chain", lastSeen)
		if err != nil {
			return nil, err
		}

		page := make([]tx, 0)
		if err := e.get(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		if len(page) <= 0 {
			break
		}

		txs = append(txs, page...)
		confirmed = len(page)
		lastSeen = page[len(page)-1].Txid
	}

	return txs, nil
}

func (e *explorer) getOutspends(ctx context.Context, txid string) ([]spentStatus, error) {
	endpoint, err := url.JoinPath(e.baseUrl, "tx", txid, "outspends")
	if err != nil {
		return nil, err
	}

	payload := make([]spentStatus, 0)
	if err := e.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (e *explorer) get(ctx context.Context, endpoint string, payload interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return json.Unmarshal(body, payload)
}
