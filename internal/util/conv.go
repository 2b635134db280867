package util

import (
	"strconv"

	"github.com/pkg/errors"
)

// MustParseUint 将字符串转换为无符号整数，解析失败时返回 0
func MustParseUint(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 32)
	return uint(id)
}

// ParseID 解析路径中的ID，0 与非数字均视为非法参数
func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "invalid id %q", s)
	}
	return uint(id), nil
}
