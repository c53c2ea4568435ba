package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/quillnote/internal/config"
	"github.com/quillnote/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 测试数据生成器
func main() {
	cfg := config.Load()
	if err := db.Init(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		URL:    cfg.DatabaseURL,
		Debug:  cfg.Debug,
	}); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	users, err := createTestUsers(db.DB)
	if err != nil {
		log.Fatal("创建测试用户失败:", err)
	}

	posts, err := createTestPosts(db.DB)
	if err != nil {
		log.Fatal("创建测试文章失败:", err)
	}

	if err := createTestInteractions(db.DB, users, posts); err != nil {
		log.Fatal("创建点赞与评论失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Println("管理员: admin@quillnote.dev (密码: admin123)")
	fmt.Println("读者: reader@quillnote.dev (密码: reader123)")
	fmt.Printf("文章: %d 篇\n", len(posts))
}

type seedUser struct {
	email    string
	username string
	password string
	staff    bool
}

var seedUsers = []seedUser{
	{email: "admin@quillnote.dev", username: "admin", password: "admin123", staff: true},
	{email: "reader@quillnote.dev", username: "reader", password: "reader123"},
}

// 创建测试用户，已存在的邮箱直接复用
func createTestUsers(gdb *gorm.DB) ([]db.User, error) {
	users := make([]db.User, 0, len(seedUsers))
	for _, seed := range seedUsers {
		var user db.User
		err := gdb.Where("email = ?", seed.email).First(&user).Error
		if err == nil {
			fmt.Printf("用户 %s 已存在，跳过创建\n", seed.email)
			users = append(users, user)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user = db.User{
			Email:           seed.email,
			Username:        seed.username,
			Password:        string(hashed),
			IsStaff:         seed.staff,
			IsSuperuser:     seed.staff,
			IsEmailVerified: true,
		}
		if err := gdb.Create(&user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	fmt.Println("✅ 测试用户创建完成")
	return users, nil
}

type seedPost struct {
	title    string
	subtitle string
	text     string
	rawHTML  bool
	visible  bool
	daysAgo  int
}

var seedPosts = []seedPost{
	{
		title:    "使用 Go 构建博客",
		subtitle: "从路由到模板",
		text: "Go 的标准库加上 Gin，足以撑起一个小型博客。\n\n" +
			"```go\nr := gin.Default()\nr.GET(\"/\", api.ShowPostList)\n```\n\n" +
			":::caption\n路由注册示例，**注意**中间件顺序\n:::\n",
		visible: true,
		daysAgo: 1,
	},
	{
		title: "图片排版小技巧",
		text: "标题会成为图片的样式类名：\n\n" +
			"![海边的日落](https://images.unsplash.com/photo-1506744038136-46273834b3fb?w=1600 \"wide\")\n\n" +
			"没有标题的图片保持默认宽度。\n",
		visible: true,
		daysAgo: 3,
	},
	{
		title:   "原始 HTML 文章",
		text:    "<p>这篇文章直接使用 <em>HTML</em> 编写。</p>",
		rawHTML: true,
		visible: true,
		daysAgo: 7,
	},
	{
		title:   "草稿：尚未发布",
		text:    "还在写……\n\n~~待删除的段落~~",
		visible: false,
	},
}

// 创建测试文章，清理旧文章及关联
func createTestPosts(gdb *gorm.DB) ([]db.Post, error) {
	if err := gdb.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&db.Comment{}, &db.Like{}, &db.Post{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	now := time.Now()
	posts := make([]db.Post, 0, len(seedPosts))
	for _, seed := range seedPosts {
		post := db.Post{
			Title:     seed.title,
			Subtitle:  seed.subtitle,
			Text:      seed.text,
			IsRawHTML: seed.rawHTML,
			IsVisible: seed.visible,
		}
		if seed.visible {
			published := now.AddDate(0, 0, -seed.daysAgo)
			post.PublishedAt = &published
		}
		if err := gdb.Create(&post).Error; err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	fmt.Println("✅ 测试文章创建完成")
	return posts, nil
}

// 为公开文章生成匿名点赞、用户点赞与评论
func createTestInteractions(gdb *gorm.DB, users []db.User, posts []db.Post) error {
	anonymousIPs := []string{"203.0.113.10", "203.0.113.11", "198.51.100.20"}

	for i, post := range posts {
		if !post.IsVisible {
			continue
		}
		for _, ip := range anonymousIPs[:1+i%len(anonymousIPs)] {
			if err := gdb.Create(&db.Like{PostID: post.ID, IPAddress: ip}).Error; err != nil {
				return err
			}
		}
		for _, user := range users {
			userID := user.ID
			if err := gdb.Create(&db.Like{PostID: post.ID, UserID: &userID, IPAddress: "127.0.0.1"}).Error; err != nil {
				return err
			}
			comment := db.Comment{
				PostID:   post.ID,
				AuthorID: user.ID,
				Text:     fmt.Sprintf("%s 对《%s》的评论", user.Username, post.Title),
			}
			if err := gdb.Create(&comment).Error; err != nil {
				return err
			}
		}
	}

	fmt.Println("✅ 点赞与评论创建完成")
	return nil
}
