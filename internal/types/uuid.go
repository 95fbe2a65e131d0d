package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex ctx_01HV9ZQ3J8M4K2P7Y6T5R3W1XA
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

var (
	sidGenerator *shortid.Shortid
	once         sync.Once
)

func initializeSID() {
	var err error
	sidGenerator, err = shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic("failed to initialize shortid generator: " + err.Error())
	}
}

// GenerateShortIDWithPrefix returns an upper-cased short ID with a prefix.
// Total length is capped at 16 characters, e.g. `INV-2025-XYZ12A8`.
func GenerateShortIDWithPrefix(prefix string) string {
	once.Do(initializeSID)

	id, err := sidGenerator.Generate()
	if err != nil {
		return ""
	}
	id = strings.ReplaceAll(id, "-", "")

	availableLen := 16 - len(prefix)
	if availableLen <= 0 {
		return ""
	}

	if len(id) > availableLen {
		id = id[:availableLen]
	}

	return strings.ToUpper(fmt.Sprintf("%s%s", prefix, id))
}

const (
	UUID_PREFIX_CREDIT_ACCOUNT     = "cacc"
	UUID_PREFIX_CREDIT_TRANSACTION = "ctxn"
	UUID_PREFIX_CREDIT_ALERT       = "calert"
	UUID_PREFIX_MONITORING_LOG     = "cmon"
	UUID_PREFIX_COST_CONFIGURATION = "ccfg"
	UUID_PREFIX_USAGE_RECORD       = "usage"
	UUID_PREFIX_INVOICE            = "inv"
	UUID_PREFIX_INVOICE_LINE_ITEM  = "inv_line"
	UUID_PREFIX_PROVIDER           = "prov"
	UUID_PREFIX_SETTING            = "setting"
	UUID_PREFIX_WEBHOOK_EVENT      = "webhook"
)

const (
	SHORT_ID_PREFIX_INVOICE = "INV-"
)
