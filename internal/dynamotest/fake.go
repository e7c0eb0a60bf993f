// Package dynamotest provides an in-memory DynamoDB used by store tests.
//
// It understands the small expression dialect the stores in this module issue:
// conjunctions of attribute_exists / attribute_not_exists / comparisons for conditions,
// SET clauses with optional "+" or "-" arithmetic for updates, and single-equality key
// conditions for queries. Every call runs under one mutex, so conditional writes are
// atomic the same way they are against the real service.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type table struct {
	key   string
	items map[string]map[string]types.AttributeValue
}

// Fake implements aws.DynamoDBAPI.
type Fake struct {
	mu     sync.Mutex
	tables map[string]*table
	fail   map[string][]error
	calls  map[string]int
}

// New returns an empty fake with no tables.
func New() *Fake {
	return &Fake{
		tables: map[string]*table{},
		fail:   map[string][]error{},
		calls:  map[string]int{},
	}
}

// CreateTable registers a table whose partition key is the string attribute key.
func (f *Fake) CreateTable(name, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{key: key, items: map[string]map[string]types.AttributeValue{}}
}

// FailNext makes the next call to op (e.g. "UpdateItem") return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = append(f.fail[op], err)
}

// Calls reports how many times op has been invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(tableName, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return nil
	}
	item, ok := t.items[key]
	if !ok {
		return nil
	}
	return cloneItem(item)
}

// Len returns the number of items in a table.
func (f *Fake) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tables[tableName]; ok {
		return len(t.items)
	}
	return 0
}

// Seed stores item without any condition.
func (f *Fake) Seed(tableName string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[tableName]
	k, err := t.keyOf(item)
	if err != nil {
		panic(err)
	}
	t.items[k] = cloneItem(item)
}

func (f *Fake) enter(op string) error {
	f.calls[op]++
	if errs := f.fail[op]; len(errs) > 0 {
		f.fail[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *Fake) table(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("missing table name")
	}
	t, ok := f.tables[*name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: strPtr("table " + *name)}
	}
	return t, nil
}

func (t *table) keyOf(item map[string]types.AttributeValue) (string, error) {
	v, ok := item[t.key].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("missing string key %q", t.key)
	}
	return v.Value, nil
}

func (f *Fake) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	ex := expr{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	old := t.items[k]
	if params.ConditionExpression != nil {
		ok, err := ex.condition(*params.ConditionExpression, old)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
		}
	}
	t.items[k] = cloneItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: cloneItem(item)}, nil
}

func (f *Fake) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	if params.ConditionExpression != nil {
		ex := expr{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
		ok, err := ex.condition(*params.ConditionExpression, old)
		if err != nil {
			return nil, err
		}
		if !ok {
			ccf := &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
			if params.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld && old != nil {
				ccf.Item = cloneItem(old)
			}
			return nil, ccf
		}
	}
	delete(t.items, k)
	return &dyn.DeleteItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	ex := expr{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	next, ok, err := t.applyUpdate(ex, params.Key, params.ConditionExpression, params.UpdateExpression)
	if err != nil {
		return nil, err
	}
	if !ok {
		ccf := &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
		if params.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld {
			k, _ := t.keyOf(params.Key)
			if old, exists := t.items[k]; exists {
				ccf.Item = cloneItem(old)
			}
		}
		return nil, ccf
	}
	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew || params.ReturnValues == types.ReturnValueUpdatedNew {
		out.Attributes = cloneItem(next)
	}
	return out, nil
}

// applyUpdate evaluates the condition and update and stores the result. ok is false when the
// condition did not hold.
func (t *table) applyUpdate(ex expr, key map[string]types.AttributeValue, cond, update *string) (map[string]types.AttributeValue, bool, error) {
	k, err := t.keyOf(key)
	if err != nil {
		return nil, false, err
	}
	old := t.items[k]
	if cond != nil {
		ok, err := ex.condition(*cond, old)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
	}
	next := cloneItem(old)
	if next == nil {
		next = cloneItem(key)
	}
	if update != nil {
		if err := ex.update(*update, next); err != nil {
			return nil, false, err
		}
	}
	t.items[k] = next
	return next, true, nil
}

func (f *Fake) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("missing key condition")
	}
	ex := expr{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	var items []map[string]types.AttributeValue
	for _, k := range t.sortedKeys() {
		ok, err := ex.condition(*params.KeyConditionExpression, t.items[k])
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, cloneItem(t.items[k]))
		}
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *Fake) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]types.AttributeValue, 0, len(t.items))
	for _, k := range t.sortedKeys() {
		items = append(items, cloneItem(t.items[k]))
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransactWriteItems"); err != nil {
		return nil, err
	}

	// snapshot every table so a failed item rolls back the whole transaction
	snapshot := map[string]map[string]map[string]types.AttributeValue{}
	for name, t := range f.tables {
		cp := make(map[string]map[string]types.AttributeValue, len(t.items))
		for k, v := range t.items {
			cp[k] = v
		}
		snapshot[name] = cp
	}
	restore := func() {
		for name, items := range snapshot {
			f.tables[name].items = items
		}
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		ok, err := f.transactOne(it)
		if err != nil {
			restore()
			return nil, err
		}
		if !ok {
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed"), Message: strPtr("The conditional request failed")}
			failed = true
		}
	}
	if failed {
		restore()
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (f *Fake) transactOne(it types.TransactWriteItem) (bool, error) {
	switch {
	case it.Put != nil:
		p := it.Put
		t, err := f.table(p.TableName)
		if err != nil {
			return false, err
		}
		k, err := t.keyOf(p.Item)
		if err != nil {
			return false, err
		}
		if p.ConditionExpression != nil {
			ex := expr{names: p.ExpressionAttributeNames, values: p.ExpressionAttributeValues}
			ok, err := ex.condition(*p.ConditionExpression, t.items[k])
			if err != nil || !ok {
				return false, err
			}
		}
		t.items[k] = cloneItem(p.Item)
		return true, nil
	case it.Update != nil:
		u := it.Update
		t, err := f.table(u.TableName)
		if err != nil {
			return false, err
		}
		ex := expr{names: u.ExpressionAttributeNames, values: u.ExpressionAttributeValues}
		_, ok, err := t.applyUpdate(ex, u.Key, u.ConditionExpression, u.UpdateExpression)
		return ok, err
	case it.ConditionCheck != nil:
		c := it.ConditionCheck
		t, err := f.table(c.TableName)
		if err != nil {
			return false, err
		}
		k, err := t.keyOf(c.Key)
		if err != nil {
			return false, err
		}
		ex := expr{names: c.ExpressionAttributeNames, values: c.ExpressionAttributeValues}
		return ex.condition(*c.ConditionExpression, t.items[k])
	case it.Delete != nil:
		d := it.Delete
		t, err := f.table(d.TableName)
		if err != nil {
			return false, err
		}
		k, err := t.keyOf(d.Key)
		if err != nil {
			return false, err
		}
		if d.ConditionExpression != nil {
			ex := expr{names: d.ExpressionAttributeNames, values: d.ExpressionAttributeValues}
			ok, err := ex.condition(*d.ConditionExpression, t.items[k])
			if err != nil || !ok {
				return false, err
			}
		}
		delete(t.items, k)
		return true, nil
	}
	return false, errors.New("empty transact item")
}

func (t *table) sortedKeys() []string {
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// expr resolves placeholders for one request.
type expr struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func (e expr) path(raw string) ([]string, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	for i, p := range parts {
		if strings.HasPrefix(p, "#") {
			n, ok := e.names[p]
			if !ok {
				return nil, fmt.Errorf("unknown attribute name %s", p)
			}
			parts[i] = n
		}
	}
	return parts, nil
}

func (e expr) operand(raw string, item map[string]types.AttributeValue) (types.AttributeValue, bool, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, ":") {
		v, ok := e.values[raw]
		if !ok {
			return nil, false, fmt.Errorf("unknown attribute value %s", raw)
		}
		return v, true, nil
	}
	p, err := e.path(raw)
	if err != nil {
		return nil, false, err
	}
	v, ok := lookup(item, p)
	return v, ok, nil
}

var comparators = []string{"<>", ">=", "<=", "=", ">", "<"}

func (e expr) condition(raw string, item map[string]types.AttributeValue) (bool, error) {
	for _, term := range strings.Split(raw, " AND ") {
		term = strings.TrimSpace(term)
		switch {
		case strings.HasPrefix(term, "attribute_exists(") && strings.HasSuffix(term, ")"):
			p, err := e.path(term[len("attribute_exists(") : len(term)-1])
			if err != nil {
				return false, err
			}
			if _, ok := lookup(item, p); !ok {
				return false, nil
			}
		case strings.HasPrefix(term, "attribute_not_exists(") && strings.HasSuffix(term, ")"):
			p, err := e.path(term[len("attribute_not_exists(") : len(term)-1])
			if err != nil {
				return false, err
			}
			if _, ok := lookup(item, p); ok {
				return false, nil
			}
		default:
			ok, err := e.compare(term, item)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func (e expr) compare(term string, item map[string]types.AttributeValue) (bool, error) {
	for _, op := range comparators {
		idx := strings.Index(term, " "+op+" ")
		if idx < 0 {
			continue
		}
		left, lok, err := e.operand(term[:idx], item)
		if err != nil {
			return false, err
		}
		right, rok, err := e.operand(term[idx+len(op)+2:], item)
		if err != nil {
			return false, err
		}
		if !lok || !rok {
			return op == "<>" && lok != rok, nil
		}
		c, err := cmp(left, right)
		if err != nil {
			return false, err
		}
		switch op {
		case "=":
			return c == 0, nil
		case "<>":
			return c != 0, nil
		case ">=":
			return c >= 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		case "<":
			return c < 0, nil
		}
	}
	return false, fmt.Errorf("unsupported condition term %q", term)
}

func (e expr) update(raw string, item map[string]types.AttributeValue) error {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "SET ") {
		return fmt.Errorf("unsupported update expression %q", raw)
	}
	// evaluate every right hand side against the pre-update item
	before := cloneItem(item)
	type assignment struct {
		path  []string
		value types.AttributeValue
	}
	var assignments []assignment
	for _, clause := range strings.Split(raw[len("SET "):], ",") {
		lhs, rhs, ok := strings.Cut(clause, "=")
		if !ok {
			return fmt.Errorf("bad set clause %q", clause)
		}
		p, err := e.path(lhs)
		if err != nil {
			return err
		}
		v, err := e.arith(rhs, before)
		if err != nil {
			return err
		}
		assignments = append(assignments, assignment{path: p, value: v})
	}
	for _, a := range assignments {
		if err := assign(item, a.path, a.value); err != nil {
			return err
		}
	}
	return nil
}

func (e expr) arith(raw string, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	raw = strings.TrimSpace(raw)
	for _, op := range []string{" + ", " - "} {
		l, r, ok := strings.Cut(raw, op)
		if !ok {
			continue
		}
		lv, lok, err := e.operand(l, item)
		if err != nil {
			return nil, err
		}
		rv, rok, err := e.operand(r, item)
		if err != nil {
			return nil, err
		}
		if !lok || !rok {
			return nil, errors.New("ValidationException: arithmetic operand does not exist")
		}
		a, err := number(lv)
		if err != nil {
			return nil, err
		}
		b, err := number(rv)
		if err != nil {
			return nil, err
		}
		if op == " - " {
			b = -b
		}
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(a+b, 10)}, nil
	}
	v, ok, err := e.operand(raw, item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("ValidationException: %s does not exist", raw)
	}
	return v, nil
}

func lookup(item map[string]types.AttributeValue, path []string) (types.AttributeValue, bool) {
	if item == nil {
		return nil, false
	}
	cur := item
	for i, p := range path {
		v, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return nil, false
		}
		cur = m.Value
	}
	return nil, false
}

func assign(item map[string]types.AttributeValue, path []string, v types.AttributeValue) error {
	cur := item
	for _, p := range path[:len(path)-1] {
		m, ok := cur[p].(*types.AttributeValueMemberM)
		if !ok {
			return fmt.Errorf("ValidationException: document path %s not valid for update", strings.Join(path, "."))
		}
		cur = m.Value
	}
	cur[path[len(path)-1]] = v
	return nil
}

func number(v types.AttributeValue) (int64, error) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("ValidationException: operand type %T is not a number", v)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func cmp(a, b types.AttributeValue) (int, error) {
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		x, err := number(av)
		if err != nil {
			return 0, err
		}
		y, err := number(b)
		if err != nil {
			return 0, err
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 1, nil
		}
		return strings.Compare(av.Value, bv.Value), nil
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if ok && av.Value == bv.Value {
			return 0, nil
		}
		return 1, nil
	}
	return 0, fmt.Errorf("unsupported comparison of %T", a)
}

func cloneItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v types.AttributeValue) types.AttributeValue {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: tv.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: tv.Value}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: tv.Value}
	case *types.AttributeValueMemberNULL:
		return &types.AttributeValueMemberNULL{Value: tv.Value}
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: cloneItem(tv.Value)}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(tv.Value))
		for i, e := range tv.Value {
			l[i] = cloneValue(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), tv.Value...)}
	case *types.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: append([]string(nil), tv.Value...)}
	}
	return v
}

func strPtr(s string) *string { return &s }
