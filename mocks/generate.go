package mocks

//go:generate mockgen -destination=./mock_pricing.go -package=mocks github.com/deltastream-lab/tradesim/internal/pricing Source
//go:generate mockgen -destination=./mock_publisher.go -package=mocks github.com/deltastream-lab/tradesim/pkg/events Publisher
//go:generate mockgen -destination=./mock_quoter.go -package=mocks github.com/deltastream-lab/tradesim/internal/risk Quoter
