package tronscan

// transactionInfo is the subset of the TronScan transaction-info response we read
type transactionInfo struct {
	Hash        string          `json:"hash"`
	ContractRet string          `json:"contractRet"`
	Confirmed   bool            `json:"confirmed"`
	Revert      bool            `json:"revert"`
	Transfers   []trc20Transfer `json:"trc20TransferInfo"`
}

type trc20Transfer struct {
	FromAddress     string `json:"from_address"`
	ToAddress       string `json:"to_address"`
	ContractAddress string `json:"contract_address"`
	AmountStr       string `json:"amount_str"`
	Decimals        int32  `json:"decimals"`
	Symbol          string `json:"symbol"`
}
