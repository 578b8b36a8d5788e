package services

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// NumberGenerator hands out human readable invoice and ticket numbers that
// stay unique across processes as long as every process has its own node.
type NumberGenerator struct {
	node *snowflake.Node
}

func NewNumberGenerator(node int64) (*NumberGenerator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &NumberGenerator{node: n}, nil
}

// InvoiceNumber returns FAT-YYYYMM-<id> for a MM/YYYY reference period.
func (g *NumberGenerator) InvoiceNumber(period string) string {
	key := strings.ReplaceAll(PeriodKey(period), "-", "")
	if key == "" {
		key = "000000"
	}
	return fmt.Sprintf("FAT-%s-%s", key, g.node.Generate().Base36())
}

func (g *NumberGenerator) TicketNumber() string {
	return "TCK-" + strings.ToUpper(g.node.Generate().Base36())
}
