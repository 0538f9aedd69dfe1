// internal/repository/mock_gen.go
package repository

//go:generate mockgen -source=./product.go -destination=../mocks/mock_product_repository.go -package=mocks CourseProductRepositoryIface
