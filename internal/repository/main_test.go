package repository

import (
	"context"
	"database/sql"
	"log"
	"testing"
	"time"

	"catalog-service/internal/domain"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var testDB *sql.DB

func setupTestDB() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "testdb"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:15",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	connStr := "postgres://" + dbUser + ":" + dbPwd + "@" + dbHost + ":" + dbPort.Port() + "/" + dbName + "?sslmode=disable"
	testDB, err = sql.Open("pgx", connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return dbContainer.Terminate, err
	}
	if err := goose.Up(testDB, "../../migrations"); err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	teardown, err := setupTestDB()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
}

// resetTables wipes catalog data between tests.
func resetTables(t *testing.T) {
	t.Helper()
	if _, err := testDB.Exec("TRUNCATE products, categories CASCADE"); err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
}

func makeCategory(name string, parent *domain.Category) *domain.Category {
	now := time.Now().UTC().Truncate(time.Microsecond)
	category := &domain.Category{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	parentPath := ""
	if parent != nil {
		category.ParentID = &parent.ID
		parentPath = parent.Path
	}
	category.Path = domain.ChildPath(parentPath, name)
	return category
}

func insertCategory(t *testing.T, name string, parent *domain.Category) *domain.Category {
	t.Helper()
	category := makeCategory(name, parent)
	if err := NewCategoryRepository(testDB).Insert(context.Background(), category); err != nil {
		t.Fatalf("failed to insert category %q: %v", name, err)
	}
	return category
}

func makeProduct(name, description string, category *domain.Category, price string, createdAt time.Time) *domain.Product {
	product := &domain.Product{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CategoryID:  category.ID,
		Price:       decimal.RequireFromString(price),
		Attributes:  map[string]any{},
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	product.RecomputeSearchVector()
	return product
}

func insertProduct(t *testing.T, name, description string, category *domain.Category, price string, createdAt time.Time) *domain.Product {
	t.Helper()
	product := makeProduct(name, description, category, price, createdAt)
	if err := NewProductRepository(testDB).Insert(context.Background(), product); err != nil {
		t.Fatalf("failed to insert product %q: %v", name, err)
	}
	return product
}
