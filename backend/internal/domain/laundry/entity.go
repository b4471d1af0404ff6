package laundry

import "time"

// Customer 映射 customers 表，门店录入的客户档案。
type Customer struct {
	ID        uint       `gorm:"column:id;primaryKey"`
	Name      string     `gorm:"column:name;size:128"`
	Phone     string     `gorm:"column:phone;size:32;index:ix_customer_phone"`
	Address   string     `gorm:"column:address;size:512"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at"`
}

// TableName 返回客户表的名称。
func (Customer) TableName() string {
	return "customers"
}

// Service 映射 services 表，洗护服务目录条目。
type Service struct {
	ID              uint       `gorm:"column:id;primaryKey"`
	Name            string     `gorm:"column:name;size:128;index:ix_service_name"`
	Price           float64    `gorm:"column:price"`
	DurationMinutes *int       `gorm:"column:duration_minutes"`
	Status          string     `gorm:"column:status;size:16;default:active"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       *time.Time `gorm:"column:updated_at"`
}

// TableName 返回服务目录表的名称。
func (Service) TableName() string {
	return "services"
}

// Order 映射 orders 表，一笔洗护订单。
type Order struct {
	ID           uint       `gorm:"column:id;primaryKey"`
	OrderNumber  string     `gorm:"column:order_number;size:64;index:ix_order_number"`
	CustomerID   uint       `gorm:"column:customer_id"`
	ServiceID    uint       `gorm:"column:service_id"`
	PickupDate   *time.Time `gorm:"column:pickup_date"`
	Instructions string     `gorm:"column:instructions"`
	TotalCost    float64    `gorm:"column:total_cost"`
	Status       string     `gorm:"column:status;size:16;default:created"`
	QRCodePath   string     `gorm:"column:qr_code_path;size:512"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    *time.Time `gorm:"column:updated_at"`
}

// TableName 返回订单表的名称。
func (Order) TableName() string {
	return "orders"
}

// Track 映射 tracks 表，订单在门店与工厂间的流转记录。
type Track struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	OrderID   uint      `gorm:"column:order_id;index:ix_track_order"`
	WorkerID  *uint     `gorm:"column:worker_id"`
	Action    string    `gorm:"column:action;size:64"`
	Note      string    `gorm:"column:note"`
	Location  string    `gorm:"column:location;size:255"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName 返回流转记录表的名称。
func (Track) TableName() string {
	return "tracks"
}

// Worker 映射 workers 表，工厂与门店操作工。
type Worker struct {
	ID        uint       `gorm:"column:id;primaryKey"`
	Name      string     `gorm:"column:name;size:128"`
	Email     *string    `gorm:"column:email;size:255"`
	Token     *string    `gorm:"column:token;size:255"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at"`
}

// TableName 返回操作工表的名称。
func (Worker) TableName() string {
	return "workers"
}
