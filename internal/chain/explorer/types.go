package explorer

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Transaction is one row of an etherscan txlist response. All fields arrive
// as strings on the wire.
type Transaction struct {
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Input        string `json:"input"`
	MethodID     string `json:"methodId"`
	FunctionName string `json:"functionName"`
	TimeStamp    string `json:"timeStamp"`
	IsError      string `json:"isError"`
	BlockNumber  string `json:"blockNumber"`
}

// Time parses the unix timestamp field. A malformed value yields the zero
// time, which callers treat as outside any lookback horizon.
func (t Transaction) Time() time.Time {
	secs, err := strconv.ParseInt(t.TimeStamp, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// Failed reports whether the transaction reverted on-chain.
func (t Transaction) Failed() bool {
	return t.IsError != "" && t.IsError != "0"
}

// InputBytes decodes the hex call input. Malformed hex yields nil, which the
// decoder rejects as an unrecognized selector.
func (t Transaction) InputBytes() []byte {
	s := strings.TrimPrefix(t.Input, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
