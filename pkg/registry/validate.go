package registry

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength 自定义目标名称的最大长度
const MaxNameLength = 64

// ValidateInput 在进入注册表之前校验用户输入的名称和地址
// 地址只允许字母、数字、'.'、'-'、':'，与探测引擎接受的格式一致
func ValidateInput(name, address string) error {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)

	if name == "" {
		return fmt.Errorf("%w: 名称不能为空", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: 名称不能超过%d个字符", ErrInvalidInput, MaxNameLength)
	}
	if address == "" {
		return fmt.Errorf("%w: 地址不能为空", ErrInvalidInput)
	}
	if err := ValidateAddress(address); err != nil {
		return err
	}
	return nil
}

// ValidateAddress 校验地址格式
func ValidateAddress(address string) error {
	for _, r := range address {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == ':') {
			return fmt.Errorf("%w: 地址格式无效 %q", ErrInvalidInput, address)
		}
	}
	if strings.HasPrefix(address, "-") {
		return fmt.Errorf("%w: 地址不能以'-'开头", ErrInvalidInput)
	}
	return nil
}
