package privacy

import (
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/payload"
)

// MinContextualCategories is how many distinct contextual categories a record
// needs before it is treated as PII without any standalone match.
const MinContextualCategories = 2

// Classifier redacts record payloads and flags records that expose PII
type Classifier struct {
	registry *Registry
	logger   *logger.Logger
}

// NewClassifier creates a classifier over the given registry. A nil logger
// disables logging.
func NewClassifier(registry *Registry, log *logger.Logger) *Classifier {
	if log == nil {
		log = logger.NewNop()
	}

	log.Debug("Record classifier initialized",
		zap.Int("enabled_rules", len(registry.rules)),
	)

	return &Classifier{
		registry: registry,
		logger:   log,
	}
}

// Registry returns the rule registry backing this classifier
func (c *Classifier) Registry() *Registry {
	return c.registry
}

// Classify redacts every string field of p and decides whether the record is
// PII. It never fails and does not modify p.
func (c *Classifier) Classify(p *payload.Payload) Result {
	fields := p.Fields()
	result := Result{
		Redacted: payload.New(len(fields)),
		Findings: []Finding{},
	}

	contextual := make(map[Category]bool, 3)

	for _, field := range fields {
		raw, ok := field.Value.(string)
		if !ok {
			result.Redacted.Set(field.Name, field.Value)
			continue
		}

		value := trimValue(raw)

		rule, matched := c.registry.Match(field.Name, value)
		if !matched {
			result.Redacted.Set(field.Name, value)
			continue
		}

		result.Redacted.Set(field.Name, rule.Mask(value))
		result.Findings = append(result.Findings, Finding{
			Field:    field.Name,
			Category: rule.Category,
			Kind:     rule.Kind,
		})

		switch rule.Kind {
		case KindStandalone:
			result.IsPII = true
		case KindContextual:
			contextual[rule.Category] = true
		}

		c.logger.Debug("PII field masked",
			zap.String("field", field.Name),
			zap.String("category", string(rule.Category)),
			zap.String("kind", string(rule.Kind)),
		)
	}

	if len(contextual) >= MinContextualCategories {
		result.IsPII = true
	}

	return result
}
