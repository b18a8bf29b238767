package blockchaintree

// Config holds the tunables named in the external interface: the size of
// the reorg-eligible window, the maximum depth a side chain may reach
// before being rejected as "in the future", and how many extra canonical
// hashes beyond the finalization window are kept resident for fork
// resolution.
type Config struct {
	FinalizationWindow                  uint64
	NumOfSideChainMaxSize                uint64
	NumOfAdditionalCanonicalBlockHashes uint64
}

// DefaultConfig returns a 64-block finalization window, a 64-block
// side-chain allowance and 64 additional canonical hashes. The S1-S4 test
// fixtures do not use it; they build their own one-block-window Config.
func DefaultConfig() Config {
	return Config{
		FinalizationWindow:                  64,
		NumOfSideChainMaxSize:                64,
		NumOfAdditionalCanonicalBlockHashes: 64,
	}
}

func (c Config) validate() error {
	if c.NumOfSideChainMaxSize < c.FinalizationWindow {
		return ErrConfigWindowOrder
	}
	return nil
}

// canonicalWindowSize is the number of canonical hashes kept resident:
// finalization_window + num_additional, used by BlockIndices to know when
// to trim its in-memory canonical_chain map.
func (c Config) canonicalWindowSize() uint64 {
	return c.FinalizationWindow + c.NumOfAdditionalCanonicalBlockHashes
}
