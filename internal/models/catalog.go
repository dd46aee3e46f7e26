package models

type Barber struct {
	ID        int64  `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Role      string `yaml:"role" json:"role"`
	IsActive  bool   `yaml:"is_active" json:"is_active"`
	SortOrder int64  `yaml:"sort_order" json:"sort_order"`
}

type Service struct {
	ID       int64  `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Price    int64  `yaml:"price" json:"price"` // в рублях
	IsActive bool   `yaml:"is_active" json:"is_active"`
}
