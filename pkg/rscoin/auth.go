package rscoin

// AddrSig pairs a claimed signing address with its signature over a
// transaction, as collected by a client from the addrid's owning address(es)
// before submitting checkTx.
type AddrSig struct {
	Address Address
	Sig     Signature[Transaction]
}

// CheckSpendAuthorization verifies that sigs satisfy strategy for tx:
//   - StrategyDefault: at least one signature by owner's key, valid over tx
//     (other entries in sigs are ignored).
//   - StrategyMOfN: at least M valid signatures from distinct keys in the
//     configured key set (extra or duplicate signatures are tolerated as
//     long as M distinct valid ones are present).
func CheckSpendAuthorization(strategy TxStrategy, owner Address, tx Transaction, sigs []AddrSig) bool {
	switch strategy.Kind {
	case StrategyDefault:
		for _, s := range sigs {
			if s.Address.Equal(owner) && s.Sig.Verify(owner.Key, tx) {
				return true
			}
		}
		return false
	case StrategyMOfN:
		if strategy.M <= 0 {
			return false
		}
		satisfied := make(map[string]bool, len(strategy.Keys))
		for _, key := range strategy.Keys {
			for _, s := range sigs {
				if s.Address.Key.Equal(key) && s.Sig.Verify(key, tx) {
					satisfied[string(key.Bytes())] = true
					break
				}
			}
		}
		return len(satisfied) >= strategy.M
	default:
		return false
	}
}
