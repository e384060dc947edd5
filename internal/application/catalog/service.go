package catalog

import (
	"context"

	"github.com/foraling/foraling-server/internal/domain"
)

// Service serves the product catalog. The assortment is currently a fixed
// in-process list; it changes with deployments, not at runtime.
type Service interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type service struct{}

func NewService() Service {
	return &service{}
}

func (s *service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, len(products))
	copy(out, products)
	return out, nil
}

var products = []domain.Product{
	{ID: 1, Name: "ຜັດໄກ່23", Heart: 957, Price: 67, Image: "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcTzb0IFD9i42VcxKBRLdtzQsQHEKrXWJuqBEw&s"},
	{ID: 2, Name: "ເບີເກີ່", Heart: 1520, Price: 38, Image: "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcQBZL-_s71i1m6RLSIIfxfg0D9rR91Z8MLLbQ&s"},
	{ID: 3, Name: "ຍຳທະເລ", Heart: 541, Price: 163, Image: "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcRUPZ8Hv38DtbZs2gqhTLkKT-MgbmHTHpdHVw&s"},
	{ID: 4, Name: "ຍຳສະລັດ", Heart: 5971, Price: 29, Image: "https://images.pexels.com/photos/2097090/pexels-photo-2097090.jpeg?auto=compress&cs=tinysrgb&w=600"},
	{ID: 5, Name: "ສະມູດຕີ່", Heart: 1672, Price: 54, Image: "https://images.pexels.com/photos/1092730/pexels-photo-1092730.jpeg?auto=compress&cs=tinysrgb&w=600"},
	{ID: 6, Name: "ເຄັກຊອກໂກແລັດ", Heart: 541, Price: 210, Image: "https://images.pexels.com/photos/291528/pexels-photo-291528.jpeg?auto=compress&cs=tinysrgb&w=600"},
	{ID: 7, Name: "ຊີ້ນໝາ", Heart: 662, Price: 56, Image: "https://images.pexels.com/photos/361184/asparagus-steak-veal-steak-veal-361184.jpeg?auto=compress&cs=tinysrgb&w=600"},
	{ID: 8, Name: "ຊູຊິ", Heart: 25563, Price: 156, Image: "https://images.pexels.com/photos/357756/pexels-photo-357756.jpeg?auto=compress&cs=tinysrgb&w=600"},
	{ID: 9, Name: "ຊີ້ນງົວ", Heart: 954, Price: 84, Image: "https://images.pexels.com/photos/793785/pexels-photo-793785.jpeg?auto=compress&cs=tinysrgb&w=600"},
	{ID: 10, Name: "ໄຂ່ຕົ້ມ", Heart: 2359, Price: 59, Image: "https://encrypted-tbn0.gstatic.com/images?q=tbn:ANd9GcRUPZ8Hv38DtbZs2gqhTLkKT-MgbmHTHpdHVw&s"},
	{ID: 11, Name: "ພິດຊ່າ", Heart: 587, Price: 85, Image: "https://images.pexels.com/photos/2147491/pexels-photo-2147491.jpeg?cs=srgb&dl=pexels-vince-2147491.jpg&fm=jpg"},
}
