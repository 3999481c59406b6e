package ui

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/numparse"
	"github.com/mmynk/tabsplit/internal/session"
)

// command is one palette entry.
type command struct {
	name  string
	usage string
	help  string
	steps []session.Step // empty: every step
	// minArgs is the fewest fields after the name.
	minArgs int
}

// commands must stay in sync with the switch in Model.execute.
var commands = []command{
	{name: "scan", usage: "scan <path>", help: "read a receipt image", steps: []session.Step{session.StepLanding}, minArgs: 1},
	{name: "manual", usage: "manual", help: "type the receipt in", steps: []session.Step{session.StepLanding}},
	{name: "join", usage: "join <link|id>", help: "open a shared session", minArgs: 1},
	{name: "add", usage: "add <name> <qty> <price>", help: "add a product", steps: []session.Step{session.StepReviewing}, minArgs: 3},
	{name: "del", usage: "del <n>", help: "delete product n", steps: []session.Step{session.StepReviewing}, minArgs: 1},
	{name: "confirm", usage: "confirm", help: "start assigning", steps: []session.Step{session.StepReviewing}},
	{name: "diner", usage: "diner <name>", help: "add a diner", steps: []session.Step{session.StepAssigning}, minArgs: 1},
	{name: "rmdiner", usage: "rmdiner <d>", help: "remove a diner", steps: []session.Step{session.StepAssigning}, minArgs: 1},
	{name: "full", usage: "full <d> <p>", help: "give diner d one unit of product p", steps: []session.Step{session.StepAssigning}, minArgs: 2},
	{name: "share", usage: "share <p> <d,d,..|all>", help: "split one unit of p", steps: []session.Step{session.StepAssigning}, minArgs: 2},
	{name: "joinshare", usage: "joinshare <d> <group#>", help: "add diner d to a share group", steps: []session.Step{session.StepAssigning}, minArgs: 2},
	{name: "unassign", usage: "unassign <d> <i>", help: "remove item i from diner d", steps: []session.Step{session.StepAssigning}, minArgs: 2},
	{name: "clear", usage: "clear <d>", help: "remove every item of diner d", steps: []session.Step{session.StepAssigning}, minArgs: 1},
	{name: "discount", usage: "discount <pct> [cap]", help: "set the discount", steps: []session.Step{session.StepAssigning}, minArgs: 1},
	{name: "edit", usage: "edit", help: "back to the product list", steps: []session.Step{session.StepAssigning}},
	{name: "publish", usage: "publish", help: "share this session"},
	{name: "retry", usage: "retry", help: "retry the failed save or load"},
	{name: "link", usage: "link", help: "show the share link"},
	{name: "reset", usage: "reset", help: "start over"},
	{name: "quit", usage: "quit", help: "exit"},
}

var errUnknownCommand = errors.New("unknown command")

// parsed is a command line split into name and arguments.
type parsed struct {
	name string
	args []string
}

// parseCommand splits input and checks the command exists, applies to the
// step and has enough arguments.
func parseCommand(input string, step session.Step) (parsed, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return parsed{}, errUnknownCommand
	}
	name := strings.ToLower(fields[0])
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if !c.availableIn(step) {
			return parsed{}, fmt.Errorf("%s is not available here", name)
		}
		if len(fields)-1 < c.minArgs {
			return parsed{}, fmt.Errorf("usage: %s", c.usage)
		}
		return parsed{name: name, args: fields[1:]}, nil
	}
	return parsed{}, fmt.Errorf("%w: %s", errUnknownCommand, name)
}

func (c command) availableIn(step session.Step) bool {
	if len(c.steps) == 0 {
		return true
	}
	for _, s := range c.steps {
		if s == step {
			return true
		}
	}
	return false
}

// commandsFor lists the commands usable in step.
func commandsFor(step session.Step) []command {
	var out []command
	for _, c := range commands {
		if c.availableIn(step) {
			out = append(out, c)
		}
	}
	return out
}

// reviewProduct validates the arguments of add: a name of one or more
// words, a positive quantity and a positive price.
func reviewProduct(args []string) (models.Product, error) {
	if len(args) < 3 {
		return models.Product{}, errors.New("usage: add <name> <qty> <price>")
	}
	name := strings.Join(args[:len(args)-2], " ")
	qty, err := numparse.ParseInt(args[len(args)-2])
	if err != nil || qty <= 0 {
		return models.Product{}, fmt.Errorf("quantity must be a positive whole number, got %q", args[len(args)-2])
	}
	price, err := numparse.Parse(args[len(args)-1])
	if err != nil || !price.IsPositive() {
		return models.Product{}, fmt.Errorf("price must be a positive number, got %q", args[len(args)-1])
	}
	return models.Product{Name: name, Quantity: qty, Price: price}, nil
}

// resolveDiner finds a diner by 1-based position or by case-insensitive
// name.
func resolveDiner(s models.Session, ref string) (models.Diner, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(s.Diners) {
			return models.Diner{}, fmt.Errorf("no diner %d", n)
		}
		return s.Diners[n-1], nil
	}
	for _, d := range s.Diners {
		if strings.EqualFold(d.Name, ref) {
			return d, nil
		}
	}
	return models.Diner{}, fmt.Errorf("no diner %q", ref)
}

// resolveDiners parses a comma separated list of diner references, or all.
func resolveDiners(s models.Session, ref string) ([]string, error) {
	if strings.EqualFold(ref, "all") {
		ids := make([]string, 0, len(s.Diners))
		for _, d := range s.Diners {
			ids = append(ids, d.ID)
		}
		if len(ids) == 0 {
			return nil, errors.New("no diners yet")
		}
		return ids, nil
	}
	var ids []string
	for _, part := range strings.Split(ref, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := resolveDiner(s, part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, d.ID)
	}
	if len(ids) == 0 {
		return nil, errors.New("no diners given")
	}
	return ids, nil
}

// resolveProduct finds a product of the catalog by 1-based position in
// display order or by case-insensitive name.
func resolveProduct(c models.Catalog, ref string) (models.Product, error) {
	ids := c.IDs()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(ids) {
			return models.Product{}, fmt.Errorf("no product %d", n)
		}
		return c[ids[n-1]], nil
	}
	for _, id := range ids {
		if strings.EqualFold(c[id].Name, ref) {
			return c[id], nil
		}
	}
	return models.Product{}, fmt.Errorf("no product %q", ref)
}

// resolveItem finds item i (1-based) of a diner.
func resolveItem(d models.Diner, ref string) (models.LineItem, error) {
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(d.SelectedItems) {
		return models.LineItem{}, fmt.Errorf("%s has no item %s", d.Name, ref)
	}
	return d.SelectedItems[n-1], nil
}

// groupOrder numbers the share groups by where they first appear walking the
// diners in order.
func groupOrder(s models.Session) []string {
	seen := make(map[string]bool, len(s.SharedInstances))
	var ids []string
	for _, d := range s.Diners {
		for _, item := range d.SelectedItems {
			if item.Kind != models.KindShared || seen[item.ShareGroupID] {
				continue
			}
			if _, ok := s.SharedInstances[item.ShareGroupID]; !ok {
				continue
			}
			seen[item.ShareGroupID] = true
			ids = append(ids, item.ShareGroupID)
		}
	}
	// Groups without members in the diner list sort last, by id
	var rest []string
	for id := range s.SharedInstances {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// resolveGroup finds a share group by its 1-based number.
func resolveGroup(s models.Session, ref string) (string, error) {
	order := groupOrder(s)
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "#"))
	if err != nil || n < 1 || n > len(order) {
		return "", fmt.Errorf("no share group %s", ref)
	}
	return order[n-1], nil
}

// SessionID accepts a share link (http://host/?id=X) or a bare id.
func SessionID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.Contains(ref, "://") {
		if ref == "" {
			return "", errors.New("session id required")
		}
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid link: %w", err)
	}
	id := u.Query().Get("id")
	if id == "" {
		return "", errors.New("link has no id parameter")
	}
	return id, nil
}

// ShareLink builds the link of a session; an empty id gives the bare base.
func ShareLink(base, id string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := u.Query()
	if id == "" {
		q.Del("id")
	} else {
		q.Set("id", id)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
