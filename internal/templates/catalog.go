// Package templates содержит встроенный каталог фрагментов шаблонов бота.
//
// Фрагменты лежат в fragments/ (YAML) и встраиваются в бинарник:
//
//	fragments/base.yaml              — общий фрагмент (main, flow_handoff, flow_help)
//	fragments/specialties/<name>.yaml — отрасль
//	fragments/goals/<name>.yaml       — цель бота
//
// Каталог выбирает фрагменты по паре specialty × goal и задаёт таблицу
// маршрутов для шага goal_router.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/shaiso/Botflow/internal/domain"
	"github.com/shaiso/Botflow/internal/engine"
)

//go:embed fragments
var fragmentsFS embed.FS

// RouteGoal — ключ маршрута шага goal_router.
const RouteGoal = "goal"

// DefaultGoal — цель, используемая для неизвестных значений.
const DefaultGoal = "appointments"

// goalFlows — цель → фрагмент и flow, в который ведёт goal_router.
var goalFlows = map[string]struct {
	fragment string
	flowID   string
}{
	"appointments":            {fragment: "appointments", flowID: "flow_appointments"},
	"faqs":                    {fragment: "faqs", flowID: "flow_faqs"},
	"promotions":              {fragment: "promotions", flowID: "flow_promotions"},
	"insurance_check":         {fragment: "insurance_check", flowID: "flow_insurance"},
	"new_patient_intake":      {fragment: "new_patient_intake", flowID: "flow_patient_intake"},
	"orthodontics_consult":    {fragment: "orthodontics_consult", flowID: "flow_ortho"},
	"post_visit_instructions": {fragment: "post_visit_instructions", flowID: "flow_instructions"},
}

// specialtyOverrides — цели со своим фрагментом для конкретной отрасли.
var specialtyOverrides = map[[2]string]struct {
	fragment string
	flowID   string
}{
	{"real_estate", "faqs"}: {fragment: "faqs_real_estate", flowID: "flow_faqs_re"},
}

// Selection — результат выбора фрагментов.
type Selection struct {
	// Specialty — отрасль; пустая, если отрасль неизвестна.
	Specialty string

	// Goal — цель после нормализации (неизвестная → appointments).
	Goal string

	// Names — имена фрагментов в порядке наложения.
	Names []string

	// Fragments — фрагменты в порядке наложения (base → specialty → goal).
	Fragments []domain.Template

	// Routes — таблица маршрутов для engine.Compose.
	Routes map[string]string
}

// Catalog — разобранные встроенные фрагменты.
type Catalog struct {
	base        domain.Template
	specialties map[string]domain.Template
	goals       map[string]domain.Template
}

// Load разбирает все встроенные фрагменты.
func Load() (*Catalog, error) {
	c := &Catalog{
		specialties: make(map[string]domain.Template),
		goals:       make(map[string]domain.Template),
	}

	base, err := parseFile("fragments/base.yaml")
	if err != nil {
		return nil, err
	}
	c.base = base

	if err := loadDir("fragments/specialties", c.specialties); err != nil {
		return nil, err
	}
	if err := loadDir("fragments/goals", c.goals); err != nil {
		return nil, err
	}

	for goal, def := range goalFlows {
		if _, ok := c.goals[def.fragment]; !ok {
			return nil, fmt.Errorf("goal %s: fragment %s not found", goal, def.fragment)
		}
	}

	return c, nil
}

var defaultCatalog = sync.OnceValues(Load)

// Default возвращает каталог, разобранный один раз на процесс.
func Default() (*Catalog, error) {
	return defaultCatalog()
}

func loadDir(dir string, into map[string]domain.Template) error {
	entries, err := fs.ReadDir(fragmentsFS, dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		t, err := parseFile(path.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		into[strings.TrimSuffix(entry.Name(), ".yaml")] = t
	}
	return nil
}

func parseFile(name string) (domain.Template, error) {
	data, err := fragmentsFS.ReadFile(name)
	if err != nil {
		return domain.Template{}, fmt.Errorf("read %s: %w", name, err)
	}
	t, err := engine.ParseTemplate(data)
	if err != nil {
		return domain.Template{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return t, nil
}

// Select выбирает фрагменты и маршрут для пары specialty × goal.
//
// Неизвестная отрасль пропускается, неизвестная цель заменяется на
// appointments. Фрагменты каталога не копируются: Compose делает
// глубокую копию при сборке.
func (c *Catalog) Select(specialty, goal string) Selection {
	sel := Selection{
		Names:     []string{"base"},
		Fragments: []domain.Template{c.base},
	}

	if c.HasSpecialty(specialty) {
		sel.Specialty = specialty
		sel.Names = append(sel.Names, "specialties/"+specialty)
		sel.Fragments = append(sel.Fragments, c.specialties[specialty])
	}

	if !c.HasGoal(goal) {
		goal = DefaultGoal
	}
	def := goalFlows[goal]
	if override, ok := specialtyOverrides[[2]string{sel.Specialty, goal}]; ok {
		def = override
	}
	sel.Goal = goal
	sel.Names = append(sel.Names, "goals/"+def.fragment)
	sel.Fragments = append(sel.Fragments, c.goals[def.fragment])
	sel.Routes = map[string]string{RouteGoal: def.flowID}

	return sel
}

// Compose выбирает фрагменты и собирает шаблон бота.
func (c *Catalog) Compose(specialty, goal string, variables map[string]any) (domain.Template, Selection) {
	sel := c.Select(specialty, goal)
	tmpl := engine.Compose(sel.Fragments, engine.ComposeOptions{
		Routes:    sel.Routes,
		Variables: variables,
	})
	return tmpl, sel
}

// Specialties возвращает известные отрасли в алфавитном порядке.
func (c *Catalog) Specialties() []string {
	return sortedKeys(c.specialties)
}

// Goals возвращает известные цели в алфавитном порядке.
func (c *Catalog) Goals() []string {
	goals := make([]string, 0, len(goalFlows))
	for goal := range goalFlows {
		goals = append(goals, goal)
	}
	slices.Sort(goals)
	return goals
}

// HasSpecialty проверяет, есть ли фрагмент для отрасли.
func (c *Catalog) HasSpecialty(specialty string) bool {
	_, ok := c.specialties[specialty]
	return ok
}

// HasGoal проверяет, известна ли цель.
func (c *Catalog) HasGoal(goal string) bool {
	_, ok := goalFlows[goal]
	return ok
}

func sortedKeys(m map[string]domain.Template) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
