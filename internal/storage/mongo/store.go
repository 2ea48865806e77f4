// Package mongo stores expenses and budgets as MongoDB documents.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"expensecal/internal/core"
	"expensecal/internal/storage"
)

const (
	ExpensesCollection = "expenses"
	BudgetsCollection  = "budgets"
)

var _ storage.Store = (*Store)(nil)

type expenseDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Date        string             `bson:"date"`
	AmountCents int64              `bson:"amountCents"`
	// Older documents hold the amount as a plain number in currency units.
	LegacyAmount *float64  `bson:"amount,omitempty"`
	Description  string    `bson:"description"`
	Label        string    `bson:"label"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

type budgetDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Type        string             `bson:"type"`
	AmountCents int64              `bson:"amountCents"`
	StartDate   string             `bson:"startDate"`
	Category    string             `bson:"category,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

type Store struct {
	client   *mongo.Client
	expenses *mongo.Collection
	budgets  *mongo.Collection
	now      func() time.Time
}

// Open connects to uri, selects database and ensures the indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	db := client.Database(database)
	s := &Store{
		client:   client,
		expenses: db.Collection(ExpensesCollection),
		budgets:  db.Collection(BudgetsCollection),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.expenses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create expenses index: %w", err)
	}
	_, err = s.budgets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "type", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create budgets index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Create(ctx context.Context, e core.Expense) (core.Expense, error) {
	now := s.now()
	doc := expenseDoc{
		ID:          primitive.NewObjectID(),
		Date:        e.Date.String(),
		AmountCents: e.Amount.Cents,
		Description: e.Description,
		Label:       e.Label,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.expenses.InsertOne(ctx, doc); err != nil {
		return core.Expense{}, core.WrapStore("insert expense", err)
	}
	return doc.toExpense()
}

func (s *Store) Get(ctx context.Context, id string) (core.Expense, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.Expense{}, core.ErrNotFound
	}
	var doc expenseDoc
	if err := s.expenses.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return core.Expense{}, core.WrapStore("find expense", notFound(err))
	}
	return doc.toExpense()
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

func (s *Store) ListByDate(ctx context.Context, date core.Date) ([]core.Expense, error) {
	opts := options.Find().SetSort(newestFirst)
	return s.find(ctx, "list by date", bson.M{"date": date.String()}, opts)
}

func (s *Store) ListRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "date", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1},
	})
	return s.find(ctx, "list range", dateRange(start, end), opts)
}

func (s *Store) Update(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.Expense{}, core.ErrNotFound
	}
	set := bson.M{"updatedAt": s.now()}
	change := bson.M{"$set": set}
	if u.Date != nil {
		set["date"] = u.Date.String()
	}
	if u.Amount != nil {
		set["amountCents"] = u.Amount.Cents
		change["$unset"] = bson.M{"amount": ""}
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.Label != nil {
		set["label"] = *u.Label
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc expenseDoc
	err = s.expenses.FindOneAndUpdate(ctx, bson.M{"_id": oid}, change, opts).Decode(&doc)
	if err != nil {
		return core.Expense{}, core.WrapStore("update expense", notFound(err))
	}
	return doc.toExpense()
}

func (s *Store) Delete(ctx context.Context, id string) (core.Expense, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.Expense{}, core.ErrNotFound
	}
	var doc expenseDoc
	if err := s.expenses.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return core.Expense{}, core.WrapStore("delete expense", notFound(err))
	}
	return doc.toExpense()
}

// centsExpr reads amountCents, falling back to the legacy amount field.
var centsExpr = bson.D{{Key: "$ifNull", Value: bson.A{
	"$amountCents",
	bson.D{{Key: "$round", Value: bson.A{
		bson.D{{Key: "$multiply", Value: bson.A{"$amount", 100}}},
		0,
	}}},
}}}

func (s *Store) SumAmount(ctx context.Context, start, end core.Date) (core.Money, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: dateRange(start, end)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: centsExpr}}},
		}}},
	}
	cur, err := s.expenses.Aggregate(ctx, pipeline)
	if err != nil {
		return core.Money{}, core.WrapStore("sum amount", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Total float64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return core.Money{}, core.WrapStore("sum amount", err)
	}
	if len(rows) == 0 {
		return core.Money{}, nil
	}
	return core.Money{Cents: int64(math.Round(rows[0].Total))}, nil
}

func (s *Store) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	doc := budgetDoc{
		ID:          primitive.NewObjectID(),
		Type:        string(b.Type),
		AmountCents: b.Amount.Cents,
		StartDate:   b.StartDate.String(),
		Category:    b.Category,
		CreatedAt:   s.now(),
	}
	if _, err := s.budgets.InsertOne(ctx, doc); err != nil {
		return core.Budget{}, core.WrapStore("insert budget", err)
	}
	return doc.toBudget()
}

func (s *Store) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	cur, err := s.budgets.Find(ctx, bson.M{}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, core.WrapStore("list budgets", err)
	}
	defer cur.Close(ctx)

	var docs []budgetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, core.WrapStore("list budgets", err)
	}
	budgets := make([]core.Budget, 0, len(docs))
	for _, d := range docs {
		b, err := d.toBudget()
		if err != nil {
			return nil, core.WrapStore("list budgets", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, nil
}

func (s *Store) LatestBudget(ctx context.Context, t core.BudgetType) (core.Budget, error) {
	var doc budgetDoc
	err := s.budgets.FindOne(ctx, bson.M{"type": string(t)}, options.FindOne().SetSort(newestFirst)).Decode(&doc)
	if err != nil {
		return core.Budget{}, core.WrapStore("latest budget", notFound(err))
	}
	return doc.toBudget()
}

func (s *Store) find(ctx context.Context, op string, filter any, opts *options.FindOptions) ([]core.Expense, error) {
	cur, err := s.expenses.Find(ctx, filter, opts)
	if err != nil {
		return nil, core.WrapStore(op, err)
	}
	defer cur.Close(ctx)

	var docs []expenseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, core.WrapStore(op, err)
	}
	expenses := make([]core.Expense, 0, len(docs))
	for _, d := range docs {
		e, err := d.toExpense()
		if err != nil {
			return nil, core.WrapStore(op, err)
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

func dateRange(start, end core.Date) bson.M {
	return bson.M{"date": bson.M{"$gte": start.String(), "$lte": end.String()}}
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.ErrNotFound
	}
	return err
}

func (d expenseDoc) toExpense() (core.Expense, error) {
	date, err := core.ParseDate(d.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("stored date %q: %w", d.Date, err)
	}
	amount := core.Money{Cents: d.AmountCents}
	if d.AmountCents == 0 && d.LegacyAmount != nil {
		if amount, err = core.NewMoney(decimal.NewFromFloat(*d.LegacyAmount)); err != nil {
			return core.Expense{}, fmt.Errorf("stored amount %v: %w", *d.LegacyAmount, err)
		}
	}
	return core.Expense{
		ID:          d.ID.Hex(),
		Date:        date,
		Amount:      amount,
		Description: d.Description,
		Label:       d.Label,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}

func (d budgetDoc) toBudget() (core.Budget, error) {
	start, err := core.ParseDate(d.StartDate)
	if err != nil {
		return core.Budget{}, fmt.Errorf("stored start date %q: %w", d.StartDate, err)
	}
	return core.Budget{
		ID:        d.ID.Hex(),
		Type:      core.BudgetType(d.Type),
		Amount:    core.Money{Cents: d.AmountCents},
		StartDate: start,
		Category:  d.Category,
		CreatedAt: d.CreatedAt.UTC(),
	}, nil
}
