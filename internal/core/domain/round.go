package domain

// RoundInput registers one input for the next round along with its
// tapscript alternatives
type RoundInput struct {
	Outpoint
	Tapscripts []string
}

// RoundOutput describes an output to mint in the next round
type RoundOutput struct {
	Address  string
	Amount   uint64
	Offchain bool
}

func TotalOutputAmount(outputs []RoundOutput) uint64 {
	tot := uint64(0)
	for _, o := range outputs {
		tot += o.Amount
	}
	return tot
}
