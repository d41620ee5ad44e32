package loader

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"
)

func loadRTF(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("extract RTF: %w", err)
	}
	return strings.TrimSpace(text), nil
}
