package catalog

import (
	"fmt"
	"sort"
	"strings"

	id "collecta/pkg/domain"
	dErrors "collecta/pkg/domain-errors"
)

// Catalog is the read-only registry of categories and their fields. It is
// built once at startup and safe for concurrent use.
type Catalog struct {
	categories map[id.CategoryID]*Category
	ordered    []id.CategoryID
}

// New validates categories and indexes them. Fields are sorted into display
// order and each category gets a topological evaluation order.
func New(categories ...Category) (*Catalog, error) {
	c := &Catalog{categories: make(map[id.CategoryID]*Category, len(categories))}
	for i := range categories {
		cat := categories[i]
		if _, dup := c.categories[cat.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidCatalog, cat.ID)
		}
		if err := prepare(&cat); err != nil {
			return nil, err
		}
		c.categories[cat.ID] = &cat
		c.ordered = append(c.ordered, cat.ID)
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i] < c.ordered[j] })
	return c, nil
}

func prepare(cat *Category) error {
	if !cat.Scope.IsValid() {
		return fmt.Errorf("%w: category %q has unknown scope %q", ErrInvalidCatalog, cat.ID, cat.Scope)
	}
	sort.SliceStable(cat.Fields, func(i, j int) bool {
		if cat.Fields[i].Order != cat.Fields[j].Order {
			return cat.Fields[i].Order < cat.Fields[j].Order
		}
		return cat.Fields[i].ID < cat.Fields[j].ID
	})
	index := make(map[id.FieldID]int, len(cat.Fields))
	for i := range cat.Fields {
		f := &cat.Fields[i]
		if f.Kind == nil {
			return fmt.Errorf("%w: field %q has no type", ErrInvalidCatalog, f.ID)
		}
		if f.CategoryID == "" {
			f.CategoryID = cat.ID
		}
		if f.CategoryID != cat.ID {
			return fmt.Errorf("%w: field %q belongs to %q, listed under %q", ErrInvalidCatalog, f.ID, f.CategoryID, cat.ID)
		}
		if _, dup := index[f.ID]; dup {
			return fmt.Errorf("%w: duplicate field %q in category %q", ErrInvalidCatalog, f.ID, cat.ID)
		}
		index[f.ID] = i
	}
	for _, f := range cat.Fields {
		if f.DependsOn == nil {
			continue
		}
		if f.DependsOn.FieldID == f.ID {
			return fmt.Errorf("%w: field %q depends on itself", ErrDependencyCycle, f.ID)
		}
		if _, ok := index[f.DependsOn.FieldID]; !ok {
			return fmt.Errorf("%w: field %q depends on unknown field %q in category %q",
				ErrInvalidCatalog, f.ID, f.DependsOn.FieldID, cat.ID)
		}
	}
	order, err := topoOrder(cat.Fields, index)
	if err != nil {
		return fmt.Errorf("category %q: %w", cat.ID, err)
	}
	cat.evalOrder = order
	return nil
}

// topoOrder runs Kahn's algorithm over parent -> dependent edges. Ties keep
// display order so evaluation is deterministic.
func topoOrder(fields []Field, index map[id.FieldID]int) ([]int, error) {
	inDegree := make([]int, len(fields))
	children := make([][]int, len(fields))
	for i, f := range fields {
		if f.DependsOn == nil {
			continue
		}
		p := index[f.DependsOn.FieldID]
		children[p] = append(children[p], i)
		inDegree[i]++
	}
	var queue, order []int
	for i := range fields {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		sort.Ints(queue)
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, ch := range children[n] {
			inDegree[ch]--
			if inDegree[ch] == 0 {
				queue = append(queue, ch)
			}
		}
	}
	if len(order) == len(fields) {
		return order, nil
	}
	for i := range fields {
		if inDegree[i] > 0 {
			return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, cyclePath(fields, index, i))
		}
	}
	return nil, ErrDependencyCycle
}

// cyclePath walks parent links from start until a field repeats and reports
// the loop parent first. Every field has at most one parent.
func cyclePath(fields []Field, index map[id.FieldID]int, start int) string {
	pos := map[int]int{}
	var chain []int
	cur := start
	for {
		if at, ok := pos[cur]; ok {
			chain = append(chain[at:], cur)
			break
		}
		pos[cur] = len(chain)
		chain = append(chain, cur)
		cur = index[fields[cur].DependsOn.FieldID]
	}
	names := make([]string, len(chain))
	for i, n := range chain {
		names[len(chain)-1-i] = string(fields[n].ID)
	}
	return strings.Join(names, " -> ")
}

// Category returns the definition for categoryID.
func (c *Catalog) Category(categoryID id.CategoryID) (*Category, error) {
	cat, ok := c.categories[categoryID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("category %q not found", categoryID))
	}
	return cat, nil
}

// Fields returns the fields of categoryID in display order.
func (c *Catalog) Fields(categoryID id.CategoryID) ([]Field, error) {
	cat, err := c.Category(categoryID)
	if err != nil {
		return nil, err
	}
	return cat.Fields, nil
}

// Categories returns every category ordered by id.
func (c *Catalog) Categories() []*Category {
	out := make([]*Category, 0, len(c.ordered))
	for _, cid := range c.ordered {
		out = append(out, c.categories[cid])
	}
	return out
}

// ActiveWithDeadline returns the categories the deadline sweeper tracks.
func (c *Catalog) ActiveWithDeadline() []*Category {
	var out []*Category
	for _, cid := range c.ordered {
		if cat := c.categories[cid]; cat.HasDeadline() {
			out = append(out, cat)
		}
	}
	return out
}
