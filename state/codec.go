package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Key joins a namespace prefix and fixed-width parts into a storage key
func Key(prefix string, parts ...[]byte) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += 1 + len(p)
	}
	key := make([]byte, 0, n)
	key = append(key, prefix...)
	for _, p := range parts {
		key = append(key, '/')
		key = append(key, p...)
	}
	return key
}

// GetBig reads a big-endian unsigned integer; missing keys read as zero
func GetBig(kv KV, key []byte) (*big.Int, error) {
	raw, err := kv.Get(key)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// SetBig stores an unsigned integer; zero deletes the key
func SetBig(kv KV, key []byte, v *big.Int) {
	if v == nil || v.Sign() == 0 {
		kv.Delete(key)
		return
	}
	kv.Set(key, v.Bytes())
}

// GetBool reads a flag; missing keys read as false
func GetBool(kv KV, key []byte) (bool, error) {
	raw, err := kv.Get(key)
	if err != nil {
		return false, err
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

// SetBool stores a flag; false deletes the key
func SetBool(kv KV, key []byte, v bool) {
	if !v {
		kv.Delete(key)
		return
	}
	kv.Set(key, []byte{1})
}

// GetAddress reads an address; missing keys read as the zero address
func GetAddress(kv KV, key []byte) (common.Address, error) {
	raw, err := kv.Get(key)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw), nil
}

// SetAddress stores an address; the zero address deletes the key
func SetAddress(kv KV, key []byte, addr common.Address) {
	if addr == (common.Address{}) {
		kv.Delete(key)
		return
	}
	kv.Set(key, addr.Bytes())
}

// GetUint64 reads a big-endian uint64; missing keys read as zero
func GetUint64(kv KV, key []byte) (uint64, error) {
	v, err := GetBig(kv, key)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// SetUint64 stores a uint64; zero deletes the key
func SetUint64(kv KV, key []byte, v uint64) {
	SetBig(kv, key, new(big.Int).SetUint64(v))
}
