// Package content loads quest graphs from Lua scripts. A script builds one
// quest through the Quest constructor and returns it; the loader converts the
// declared tables into graph data and validates the result before it is ever
// served to a room.
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
	"github.com/louisbranch/wayfarer.quest/internal/coop/graph"
)

const questTypeName = "quest"

// questDraft accumulates node and encounter declarations in script order.
type questDraft struct {
	id         string
	entry      string
	nodes      []map[string]any
	encounters []map[string]any
}

// LoadFile loads and validates one quest graph from a Lua script.
func LoadFile(path string) (*graph.Graph, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	registerQuestType(state)
	registerQuestConstructor(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua: %w", err)
	}

	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, fmt.Errorf("quest script must return Quest")
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	draft, ok := ud.(*questDraft)
	if !ok || draft == nil {
		return nil, fmt.Errorf("quest script returned invalid Quest")
	}
	if strings.TrimSpace(draft.id) == "" {
		draft.id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	g, err := buildGraph(draft)
	if err != nil {
		return nil, fmt.Errorf("quest %s: %w", draft.id, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("quest %s: %w", draft.id, err)
	}
	return g, nil
}

// Library holds every loaded quest graph keyed by quest id.
type Library struct {
	graphs map[string]*graph.Graph
}

// NewLibrary builds a library from already-validated graphs.
func NewLibrary(graphs ...*graph.Graph) *Library {
	lib := &Library{graphs: make(map[string]*graph.Graph, len(graphs))}
	for _, g := range graphs {
		lib.graphs[g.QuestID] = g
	}
	return lib
}

// LoadDir loads every .lua script in a directory into a library. Loading
// fails on the first invalid script; a server never starts with a partially
// valid library.
func LoadDir(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read content dir: %w", err)
	}

	lib := &Library{graphs: make(map[string]*graph.Graph)}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		g, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, exists := lib.graphs[g.QuestID]; exists {
			return nil, fmt.Errorf("quest %s declared twice", g.QuestID)
		}
		lib.graphs[g.QuestID] = g
	}
	if len(lib.graphs) == 0 {
		return nil, fmt.Errorf("no quest scripts in %s", dir)
	}

	// Cross-quest references resolve only after every script has loaded.
	for _, g := range lib.graphs {
		if err := validateSubQuests(lib, g); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// Graph returns the quest graph with the given id.
func (l *Library) Graph(questID string) (*graph.Graph, bool) {
	g, ok := l.graphs[questID]
	return g, ok
}

// QuestIDs returns loaded quest ids in sorted order.
func (l *Library) QuestIDs() []string {
	ids := make([]string, 0, len(l.graphs))
	for id := range l.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validateSubQuests(lib *Library, g *graph.Graph) error {
	for _, nodeID := range g.NodeOrder() {
		node, _ := g.Node(nodeID)
		for _, choice := range node.Choices {
			if choice.Action == nil || choice.Action.Kind != graph.ActionStartSubQuest {
				continue
			}
			if _, ok := lib.graphs[choice.Action.QuestID]; !ok {
				return fmt.Errorf("quest %s node %s: sub-quest %s not loaded",
					g.QuestID, nodeID, choice.Action.QuestID)
			}
		}
	}
	return nil
}

func registerQuestType(state *lua.State) {
	lua.NewMetaTable(state, questTypeName)
	state.NewTable()
	lua.SetFunctions(state, questMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)
}

func registerQuestConstructor(state *lua.State) {
	state.NewTable()
	lua.SetFunctions(state, questConstructor, 0)
	state.SetGlobal("Quest")
}

var questConstructor = []lua.RegistryFunction{
	{Name: "new", Function: questNew},
}

var questMethods = []lua.RegistryFunction{
	{Name: "node", Function: questNode},
	{Name: "encounter", Function: questEncounter},
}

func questNew(state *lua.State) int {
	id := lua.CheckString(state, 1)
	entry := lua.CheckString(state, 2)
	draft := &questDraft{id: id, entry: entry}
	state.PushUserData(draft)
	lua.SetMetaTableNamed(state, questTypeName)
	return 1
}

func questNode(state *lua.State) int {
	draft := checkQuest(state)
	lua.CheckType(state, 2, lua.TypeTable)
	draft.nodes = append(draft.nodes, tableToMap(state, 2))
	return 0
}

func questEncounter(state *lua.State) int {
	draft := checkQuest(state)
	lua.CheckType(state, 2, lua.TypeTable)
	draft.encounters = append(draft.encounters, tableToMap(state, 2))
	return 0
}

func checkQuest(state *lua.State) *questDraft {
	ud := lua.CheckUserData(state, 1, questTypeName)
	if draft, ok := ud.(*questDraft); ok && draft != nil {
		return draft
	}
	lua.ArgumentError(state, 1, "quest expected")
	return nil
}

func buildGraph(draft *questDraft) (*graph.Graph, error) {
	g := graph.NewGraph(draft.id, draft.entry)
	for _, data := range draft.nodes {
		node, err := decodeNode(data)
		if err != nil {
			return nil, err
		}
		g.AddNode(node)
	}
	for _, data := range draft.encounters {
		encounter, err := decodeEncounter(data)
		if err != nil {
			return nil, err
		}
		g.AddEncounter(encounter)
	}
	return g, nil
}

func decodeNode(data map[string]any) (graph.Node, error) {
	id := strField(data, "id")
	if id == "" {
		return graph.Node{}, fmt.Errorf("node is missing an id")
	}
	interaction := graph.InteractionFromLabel(strField(data, "interaction"))
	if interaction == graph.InteractionUnspecified {
		return graph.Node{}, fmt.Errorf("node %s: unknown interaction %q", id, strField(data, "interaction"))
	}

	node := graph.Node{
		ID:          id,
		Title:       strField(data, "title"),
		Text:        strField(data, "text"),
		Interaction: interaction,
		NextNodeID:  strField(data, "next_node"),
		Terminal:    boolField(data, "terminal"),
	}

	for _, raw := range mapSlice(data, "choices") {
		choice, err := decodeChoice(id, raw)
		if err != nil {
			return graph.Node{}, err
		}
		node.Choices = append(node.Choices, choice)
	}

	for _, raw := range mapSlice(data, "passive") {
		node.Passive = append(node.Passive, graph.PassiveCheck{
			Role:      domain.RoleFromLabel(strField(raw, "role")),
			Attribute: strField(raw, "attribute"),
			Min:       intField(raw, "min"),
			Reveal:    strField(raw, "reveal"),
			FailText:  strField(raw, "fail_text"),
			Flag:      strField(raw, "flag"),
		})
	}

	if score := subMap(data, "score"); score != nil {
		node.Score = &graph.ScoreSpec{
			Target:        intField(score, "target"),
			TurnBudget:    intField(score, "turn_budget"),
			SuccessNodeID: strField(score, "success_node"),
			FailureNodeID: strField(score, "failure_node"),
		}
	}
	return node, nil
}

func decodeChoice(nodeID string, data map[string]any) (graph.Choice, error) {
	id := strField(data, "id")
	if id == "" {
		return graph.Choice{}, fmt.Errorf("node %s: choice is missing an id", nodeID)
	}

	choice := graph.Choice{
		ID:                 id,
		Text:               strField(data, "text"),
		NextNodeID:         strField(data, "next_node"),
		RequiredRole:       domain.RoleFromLabel(strField(data, "required_role")),
		RequiredStats:      stringIntMap(data, "required_stats"),
		RequiredAttributes: stringIntMap(data, "required_attributes"),
		RequiredTraits:     stringSlice(data, "required_traits"),
		RequiredItem:       strField(data, "required_item"),
		Flags:              stringSlice(data, "flags"),
		ItemRewards:        stringSlice(data, "item_rewards"),
	}

	if status := subMap(data, "apply_status"); status != nil {
		choice.ApplyStatus = &graph.StatusEffect{
			Key:             strField(status, "key"),
			Multiplier:      floatField(status, "multiplier"),
			DurationSeconds: intField(status, "duration_seconds"),
		}
	}

	if action := subMap(data, "action"); action != nil {
		kind := graph.ActionKindFromLabel(strField(action, "kind"))
		if kind == graph.ActionNone {
			return graph.Choice{}, fmt.Errorf("node %s choice %s: unknown action %q",
				nodeID, id, strField(action, "kind"))
		}
		choice.Action = &graph.Action{
			Kind:          kind,
			QuestID:       strField(action, "quest"),
			EncounterID:   strField(action, "encounter"),
			VictoryNodeID: strField(action, "victory_node"),
			DefeatNodeID:  strField(action, "defeat_node"),
		}
	}
	return choice, nil
}

func decodeEncounter(data map[string]any) (graph.Encounter, error) {
	id := strField(data, "id")
	if id == "" {
		return graph.Encounter{}, fmt.Errorf("encounter is missing an id")
	}
	encounter := graph.Encounter{ID: id, Name: strField(data, "name")}
	for _, raw := range mapSlice(data, "enemies") {
		name := strField(raw, "name")
		if name == "" {
			return graph.Encounter{}, fmt.Errorf("encounter %s: enemy is missing a name", id)
		}
		behavior := domain.BehaviorFromLabel(strField(raw, "behavior"))
		if behavior == domain.BehaviorUnspecified {
			behavior = domain.BehaviorAggressive
		}
		encounter.Enemies = append(encounter.Enemies, graph.EnemySpec{
			Name:       name,
			Rank:       intField(raw, "rank"),
			HP:         intField(raw, "hp"),
			Armor:      intField(raw, "armor"),
			Attack:     intField(raw, "attack"),
			Initiative: intField(raw, "initiative"),
			Behavior:   behavior,
		})
	}
	if len(encounter.Enemies) == 0 {
		return graph.Encounter{}, fmt.Errorf("encounter %s has no enemies", id)
	}
	return encounter, nil
}
