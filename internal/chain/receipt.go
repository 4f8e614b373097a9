package chain

import (
	"encoding/json"

	"github.com/d60-Lab/qutee-media/internal/model"
)

const (
	ReceiptStatusReverted uint8 = 0
	ReceiptStatusSuccess  uint8 = 1
)

// Receipt 交易回执
type Receipt struct {
	TxHash          Hash     `json:"transactionHash"`
	ChainID         int64    `json:"chainId"`
	BlockNumber     uint64   `json:"blockNumber"`
	BlockHash       Hash     `json:"blockHash"`
	From            Address  `json:"from"`
	To              *Address `json:"to"`
	ContractAddress *Address `json:"contractAddress"`
	Nonce           uint64   `json:"nonce"`
	Method          string   `json:"method"`
	Status          uint8    `json:"status"`
	RevertReason    string   `json:"revertReason,omitempty"`
	Logs            []Log    `json:"logs"`
}

func (r *Receipt) Succeeded() bool { return r.Status == ReceiptStatusSuccess }

// Log 合约事件
type Log struct {
	Index   int             `json:"logIndex"`
	Address Address         `json:"address"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Decode 把事件数据解到 v
func (l Log) Decode(v any) error { return json.Unmarshal(l.Data, v) }

func receiptFromModel(row *model.Transaction) (*Receipt, error) {
	hash, err := ParseHash(row.Hash)
	if err != nil {
		return nil, err
	}
	from, err := ParseAddress(row.From)
	if err != nil {
		return nil, err
	}
	r := &Receipt{
		TxHash:       hash,
		ChainID:      row.ChainID,
		BlockNumber:  row.BlockNumber,
		From:         from,
		Nonce:        row.Nonce,
		Method:       row.Method,
		Status:       uint8(row.Status),
		RevertReason: row.RevertReason,
	}
	if row.To != "" {
		to, err := ParseAddress(row.To)
		if err != nil {
			return nil, err
		}
		r.To = &to
	}
	if row.ContractAddress != "" {
		ca, err := ParseAddress(row.ContractAddress)
		if err != nil {
			return nil, err
		}
		r.ContractAddress = &ca
	}
	for _, l := range row.Logs {
		addr, err := ParseAddress(l.Address)
		if err != nil {
			return nil, err
		}
		r.Logs = append(r.Logs, Log{Index: l.LogIndex, Address: addr, Event: l.Event, Data: json.RawMessage(l.Data)})
	}
	return r, nil
}
