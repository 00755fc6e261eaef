package state

import (
	"fmt"

	"loanledger/native/common"
	"loanledger/native/lending"
)

type storedQuota struct {
	EpochID   uint64
	ReqCount  uint32
	ValueUsed uint64
}

func quotaKey(module string, addr lending.Address) []byte {
	buf := make([]byte, 0, len(quotaRecordPrefix)+len(module)+1+len(addr))
	buf = append(buf, quotaRecordPrefix...)
	buf = append(buf, module...)
	buf = append(buf, '/')
	buf = append(buf, addr[:]...)
	return buf
}

// QuotaUsage loads the usage counters for the address under the module.
// Counters from an older epoch are returned as stored; the quota check rolls
// them over itself.
func (m *Manager) QuotaUsage(module string, addr lending.Address) (common.QuotaNow, bool, error) {
	if module == "" {
		return common.QuotaNow{}, false, fmt.Errorf("state: quota module required")
	}
	stored := new(storedQuota)
	ok, err := m.readRecord(quotaKey(module, addr), stored)
	if err != nil || !ok {
		return common.QuotaNow{}, false, err
	}
	return common.QuotaNow{
		EpochID:   stored.EpochID,
		ReqCount:  stored.ReqCount,
		ValueUsed: stored.ValueUsed,
	}, true, nil
}

// SetQuotaUsage persists the usage counters for the address under the module.
// One record per address; a new epoch overwrites the stale one in place.
func (m *Manager) SetQuotaUsage(module string, addr lending.Address, usage common.QuotaNow) error {
	if module == "" {
		return fmt.Errorf("state: quota module required")
	}
	record := &storedQuota{
		EpochID:   usage.EpochID,
		ReqCount:  usage.ReqCount,
		ValueUsed: usage.ValueUsed,
	}
	return m.writeRecord(quotaKey(module, addr), record)
}
