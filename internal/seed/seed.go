// Package seed loads a YAML catalog and inserts its rows into the store.
// Apply is idempotent: lead magnets, products, scenarios and FAQ entries are
// matched by name (question for FAQ) and existing rows are left untouched.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
)

// Catalog is the seed file layout.
type Catalog struct {
	LeadMagnets []LeadMagnet `yaml:"lead_magnets"`
	Products    []Product    `yaml:"products"`
	Scenarios   []Scenario   `yaml:"warmup_scenarios"`
	FAQ         []FAQ        `yaml:"faq"`
}

type LeadMagnet struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	FileURL     string `yaml:"file_url"`
	MessageText string `yaml:"message_text"`
	Active      *bool  `yaml:"active"`
	SortOrder   int    `yaml:"sort_order"`
}

type Product struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Type        string  `yaml:"type"`
	Price       int     `yaml:"price"`
	Currency    string  `yaml:"currency"`
	PaymentURL  string  `yaml:"payment_url"`
	OfferText   string  `yaml:"offer_text"`
	Active      *bool   `yaml:"active"`
	SortOrder   int     `yaml:"sort_order"`
	Offers      []Offer `yaml:"offers"`
}

type Offer struct {
	Name   string `yaml:"name"`
	Text   string `yaml:"text"`
	Price  *int   `yaml:"price"`
	Active *bool  `yaml:"active"`
}

type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Active      *bool     `yaml:"active"`
	Messages    []Message `yaml:"messages"`
}

type Message struct {
	Type       string `yaml:"type"`
	Title      string `yaml:"title"`
	Text       string `yaml:"text"`
	DelayHours int    `yaml:"delay_hours"`
}

type FAQ struct {
	Question string   `yaml:"question"`
	Keywords []string `yaml:"keywords"`
	Answer   string   `yaml:"answer"`
}

// Result counts rows inserted by Apply.
type Result struct {
	LeadMagnets int
	Products    int
	Offers      int
	Scenarios   int
	FAQ         int
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML catalog.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks names and enum values.
func (c *Catalog) Validate() error {
	for i, lm := range c.LeadMagnets {
		if strings.TrimSpace(lm.Name) == "" {
			return fmt.Errorf("seed: lead_magnets[%d]: name is required", i)
		}
		if !domain.LeadMagnetType(lm.Type).Valid() {
			return fmt.Errorf("seed: lead_magnets[%d]: invalid type %q", i, lm.Type)
		}
	}
	for i, p := range c.Products {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("seed: products[%d]: name is required", i)
		}
		if !domain.ProductType(p.Type).Valid() {
			return fmt.Errorf("seed: products[%d]: invalid type %q", i, p.Type)
		}
		if p.Currency != "" && !domain.Currency(strings.ToUpper(p.Currency)).Valid() {
			return fmt.Errorf("seed: products[%d]: invalid currency %q", i, p.Currency)
		}
		for j, o := range p.Offers {
			if strings.TrimSpace(o.Name) == "" || strings.TrimSpace(o.Text) == "" {
				return fmt.Errorf("seed: products[%d].offers[%d]: name and text are required", i, j)
			}
		}
	}
	for i, sc := range c.Scenarios {
		if strings.TrimSpace(sc.Name) == "" {
			return fmt.Errorf("seed: warmup_scenarios[%d]: name is required", i)
		}
		for j, m := range sc.Messages {
			if !domain.WarmupMessageType(m.Type).Valid() {
				return fmt.Errorf("seed: warmup_scenarios[%d].messages[%d]: invalid type %q", i, j, m.Type)
			}
			if m.DelayHours < 0 {
				return fmt.Errorf("seed: warmup_scenarios[%d].messages[%d]: delay_hours must be >= 0", i, j)
			}
		}
	}
	for i, f := range c.FAQ {
		if strings.TrimSpace(f.Question) == "" || strings.TrimSpace(f.Answer) == "" {
			return fmt.Errorf("seed: faq[%d]: question and answer are required", i)
		}
	}
	return nil
}

func active(b *bool) bool { return b == nil || *b }

// Apply inserts the catalog rows that do not exist yet, in one transaction.
func Apply(ctx context.Context, db *gorm.DB, c *Catalog) (Result, error) {
	var res Result
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, lm := range c.LeadMagnets {
			_, err := repo.GetLeadMagnetByName(ctx, tx, lm.Name)
			ok, err := missing(err)
			if err != nil {
				return fmt.Errorf("lead magnet %q: %w", lm.Name, err)
			}
			if !ok {
				continue
			}
			if _, err := repo.CreateLeadMagnet(ctx, tx, &domain.LeadMagnet{
				Name:        lm.Name,
				Description: lm.Description,
				Type:        domain.LeadMagnetType(lm.Type),
				FileURL:     lm.FileURL,
				MessageText: lm.MessageText,
				IsActive:    active(lm.Active),
				SortOrder:   lm.SortOrder,
			}); err != nil {
				return fmt.Errorf("lead magnet %q: %w", lm.Name, err)
			}
			res.LeadMagnets++
		}

		for _, p := range c.Products {
			if err := applyProduct(ctx, tx, p, &res); err != nil {
				return fmt.Errorf("product %q: %w", p.Name, err)
			}
		}

		for _, sc := range c.Scenarios {
			_, err := repo.GetScenarioByName(ctx, tx, sc.Name)
			ok, err := missing(err)
			if err != nil {
				return fmt.Errorf("scenario %q: %w", sc.Name, err)
			}
			if !ok {
				continue
			}
			row := &domain.WarmupScenario{Name: sc.Name, Description: sc.Description, IsActive: active(sc.Active)}
			for i, m := range sc.Messages {
				row.Messages = append(row.Messages, domain.WarmupMessage{
					MessageType: domain.WarmupMessageType(m.Type),
					Title:       m.Title,
					Text:        m.Text,
					DelayHours:  m.DelayHours,
					Order:       i + 1,
					IsActive:    true,
				})
			}
			if _, err := repo.CreateScenario(ctx, tx, row); err != nil {
				return fmt.Errorf("scenario %q: %w", sc.Name, err)
			}
			res.Scenarios++
		}

		for i, f := range c.FAQ {
			exists, err := repo.FAQQuestionExists(ctx, tx, f.Question)
			if err != nil {
				return fmt.Errorf("faq %q: %w", f.Question, err)
			}
			if exists {
				continue
			}
			if _, err := repo.CreateFAQEntry(ctx, tx, &domain.FAQEntry{
				Question:  f.Question,
				Keywords:  strings.Join(f.Keywords, ","),
				Answer:    f.Answer,
				IsActive:  true,
				SortOrder: i,
			}); err != nil {
				return fmt.Errorf("faq %q: %w", f.Question, err)
			}
			res.FAQ++
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed: apply: %w", err)
	}
	return res, nil
}

func applyProduct(ctx context.Context, tx *gorm.DB, p Product, res *Result) error {
	_, err := repo.GetProductByName(ctx, tx, p.Name)
	ok, err := missing(err)
	if err != nil || !ok {
		return err
	}
	cur := domain.Currency(strings.ToUpper(p.Currency))
	if cur == "" {
		cur = domain.CurrencyRUB
	}
	row, err := repo.CreateProduct(ctx, tx, &domain.Product{
		Name:        p.Name,
		Description: p.Description,
		Type:        domain.ProductType(p.Type),
		Price:       p.Price,
		Currency:    cur,
		PaymentURL:  p.PaymentURL,
		OfferText:   p.OfferText,
		IsActive:    active(p.Active),
		SortOrder:   p.SortOrder,
	})
	if err != nil {
		return err
	}
	res.Products++
	for _, o := range p.Offers {
		if _, err := repo.CreateOffer(ctx, tx, &domain.ProductOffer{
			ProductID: row.ID,
			Name:      o.Name,
			Text:      o.Text,
			Price:     o.Price,
			IsActive:  active(o.Active),
		}); err != nil {
			return err
		}
		res.Offers++
	}
	return nil
}

// missing reports whether a lookup error means the row is absent.
func missing(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return true, nil
	}
	return false, err
}
