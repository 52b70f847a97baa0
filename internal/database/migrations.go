package database

type Migration struct {
	Name     string
	Commands []string
}

var migrations = []Migration{
	{
		Name: "01_create_tables",
		Commands: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id CHAR(36) NOT NULL PRIMARY KEY,
				telegram_id BIGINT NOT NULL UNIQUE,
				username VARCHAR(64) NOT NULL DEFAULT '',
				display_name VARCHAR(128) NOT NULL,
				access_level TINYINT NOT NULL DEFAULT 1,
				is_admin BOOLEAN NOT NULL DEFAULT FALSE,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				last_login DATETIME(6) NULL,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS auth_codes (
				id CHAR(36) NOT NULL PRIMARY KEY,
				code VARCHAR(8) NOT NULL,
				telegram_id BIGINT NOT NULL,
				expires_at DATETIME(6) NOT NULL,
				used BOOLEAN NOT NULL DEFAULT FALSE,
				created_at DATETIME(6) NOT NULL,
				INDEX ix_auth_codes_telegram_id (telegram_id),
				INDEX ix_auth_codes_code (code)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS sessions (
				id CHAR(36) NOT NULL PRIMARY KEY,
				user_id CHAR(36) NOT NULL,
				token_hash CHAR(64) NOT NULL UNIQUE,
				expires_at DATETIME(6) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				CONSTRAINT fk_sessions_user
					FOREIGN KEY (user_id) REFERENCES users(id)
					ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS posts (
				id CHAR(36) NOT NULL PRIMARY KEY,
				author_id CHAR(36) NULL,
				title VARCHAR(256) NOT NULL,
				slug VARCHAR(280) NOT NULL UNIQUE,
				content_md MEDIUMTEXT NOT NULL,
				content_html MEDIUMTEXT NOT NULL,
				content_blocks JSON NULL,
				excerpt VARCHAR(512) NOT NULL DEFAULT '',
				visibility ENUM('public','registered','premium_1','premium_2') NOT NULL DEFAULT 'public',
				status ENUM('draft','published','archived') NOT NULL DEFAULT 'draft',
				view_count INT NOT NULL DEFAULT 0,
				published_at DATETIME(6) NULL,
				telegram_message_id INT NULL,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				INDEX ix_posts_visibility_status (visibility, status, published_at),
				FULLTEXT INDEX ft_posts_search (title, content_md),
				CONSTRAINT fk_posts_author
					FOREIGN KEY (author_id) REFERENCES users(id)
					ON DELETE SET NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS media (
				id CHAR(36) NOT NULL PRIMARY KEY,
				post_id CHAR(36) NULL,
				uploader_id CHAR(36) NULL,
				media_type ENUM('image','audio','video') NOT NULL,
				filename VARCHAR(255) NOT NULL,
				original_name VARCHAR(255) NOT NULL,
				file_path VARCHAR(500) NOT NULL,
				file_size BIGINT NOT NULL,
				mime_type VARCHAR(100) NOT NULL,
				sort_order INT NOT NULL DEFAULT 0,
				telegram_file_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at DATETIME(6) NOT NULL,
				INDEX ix_media_post_id (post_id),
				CONSTRAINT fk_media_post
					FOREIGN KEY (post_id) REFERENCES posts(id)
					ON DELETE CASCADE,
				CONSTRAINT fk_media_uploader
					FOREIGN KEY (uploader_id) REFERENCES users(id)
					ON DELETE SET NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

			`CREATE TABLE IF NOT EXISTS comments (
				id CHAR(36) NOT NULL PRIMARY KEY,
				post_id CHAR(36) NOT NULL,
				author_id CHAR(36) NOT NULL,
				parent_id CHAR(36) NULL,
				content TEXT NOT NULL,
				is_approved BOOLEAN NOT NULL DEFAULT TRUE,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				INDEX ix_comments_post_id (post_id),
				INDEX ix_comments_parent_id (parent_id),
				CONSTRAINT fk_comments_post
					FOREIGN KEY (post_id) REFERENCES posts(id)
					ON DELETE CASCADE,
				CONSTRAINT fk_comments_author
					FOREIGN KEY (author_id) REFERENCES users(id)
					ON DELETE CASCADE,
				CONSTRAINT fk_comments_parent
					FOREIGN KEY (parent_id) REFERENCES comments(id)
					ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
	},
	{
		Name: "02_site_settings_and_pinning",
		Commands: []string{
			"CREATE TABLE IF NOT EXISTS site_settings (\n" +
				"\t`key` VARCHAR(64) NOT NULL PRIMARY KEY,\n" +
				"\t`value` TEXT NULL\n" +
				") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

			`ALTER TABLE posts
				ADD COLUMN is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
				ADD COLUMN pinned_at DATETIME(6) NULL`,
		},
	},
	{
		Name: "03_post_cover_image",
		Commands: []string{
			`ALTER TABLE posts
				ADD COLUMN cover_image_id CHAR(36) NULL,
				ADD CONSTRAINT fk_posts_cover_image
					FOREIGN KEY (cover_image_id) REFERENCES media(id)
					ON DELETE SET NULL`,
		},
	},
}
