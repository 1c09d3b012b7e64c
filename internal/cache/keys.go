package cache

import (
	"fmt"
	"strconv"
	"strings"
)

const gridKeyPrefix = "grid:"

// GridKey ключ последнего снапшота сетки мира
func GridKey(worldID uint64) string {
	return fmt.Sprintf("%s%d", gridKeyPrefix, worldID)
}

// ParseGridKey извлекает id мира из ключа GridKey
func ParseGridKey(key string) (uint64, error) {
	raw, ok := strings.CutPrefix(key, gridKeyPrefix)
	if !ok {
		return 0, ErrInvalidKey
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return id, nil
}
