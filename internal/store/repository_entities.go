package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amityvox/notifyhub/internal/models"
)

// CreateSignup inserts a new signup entity alongside its welcome-email
// mirror, both initialized to "pending".
func (s *Store) CreateSignup(ctx context.Context, sg *models.Signup) error {
	history, err := json.Marshal(sg.WelcomeEmail.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO signups (
			id, user_id, username, email, password_hash,
			welcome_email_status, welcome_email_attempts, welcome_email_delivery_history, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sg.ID.String(), sg.UserID, sg.Username, sg.Email, sg.PasswordHash,
		sg.WelcomeEmail.Status, sg.WelcomeEmail.Attempts, history, sg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting signup: %w", err)
	}
	return nil
}

// UpdateSignupWelcomeEmailMirror updates the welcome-email mirror summary on
// a signup entity. Called after the tracking record itself has already been
// updated, per the tracking-record-first, mirror-second ordering.
func (s *Store) UpdateSignupWelcomeEmailMirror(ctx context.Context, userID string, mirror models.MirrorSummary) error {
	history, err := json.Marshal(mirror.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE signups SET
			welcome_email_status = $2, welcome_email_attempts = $3,
			welcome_email_last_attempt_at = $4, welcome_email_delivered_at = $5,
			welcome_email_failed_at = $6, welcome_email_failure_reason = $7,
			welcome_email_queue_job_id = $8, welcome_email_notification_id = $9,
			welcome_email_delivery_history = $10
		WHERE user_id = $1`,
		userID, mirror.Status, mirror.Attempts, mirror.LastAttemptAt, mirror.DeliveredAt,
		mirror.FailedAt, mirror.FailureReason, mirror.QueueJobID, mirror.NotificationID, history,
	)
	if err != nil {
		return fmt.Errorf("updating signup mirror: %w", err)
	}
	return nil
}

// GetSignupByUserID fetches a signup entity by user ID.
func (s *Store) GetSignupByUserID(ctx context.Context, userID string) (*models.Signup, error) {
	var sg models.Signup
	var id string
	var history []byte

	err := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, username, email, password_hash,
			welcome_email_status, welcome_email_attempts, welcome_email_last_attempt_at,
			welcome_email_delivered_at, welcome_email_failed_at, welcome_email_failure_reason,
			welcome_email_queue_job_id, welcome_email_notification_id,
			welcome_email_delivery_history, created_at
		FROM signups WHERE user_id = $1`, userID).Scan(
		&id, &sg.UserID, &sg.Username, &sg.Email, &sg.PasswordHash,
		&sg.WelcomeEmail.Status, &sg.WelcomeEmail.Attempts, &sg.WelcomeEmail.LastAttemptAt,
		&sg.WelcomeEmail.DeliveredAt, &sg.WelcomeEmail.FailedAt, &sg.WelcomeEmail.FailureReason,
		&sg.WelcomeEmail.QueueJobID, &sg.WelcomeEmail.NotificationID,
		&history, &sg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching signup: %w", err)
	}

	parsed, err := models.ParseULID(id)
	if err != nil {
		return nil, fmt.Errorf("parsing signup id: %w", err)
	}
	sg.ID = parsed

	if len(history) > 0 {
		if err := json.Unmarshal(history, &sg.WelcomeEmail.DeliveryHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling delivery history: %w", err)
		}
	}

	return &sg, nil
}

// GetSignupByID fetches a signup entity by its own ID, for the
// welcome-email-status endpoint.
func (s *Store) GetSignupByID(ctx context.Context, id string) (*models.Signup, error) {
	var sg models.Signup
	var rowID string
	var history []byte

	err := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, username, email, password_hash,
			welcome_email_status, welcome_email_attempts, welcome_email_last_attempt_at,
			welcome_email_delivered_at, welcome_email_failed_at, welcome_email_failure_reason,
			welcome_email_queue_job_id, welcome_email_notification_id,
			welcome_email_delivery_history, created_at
		FROM signups WHERE id = $1`, id).Scan(
		&rowID, &sg.UserID, &sg.Username, &sg.Email, &sg.PasswordHash,
		&sg.WelcomeEmail.Status, &sg.WelcomeEmail.Attempts, &sg.WelcomeEmail.LastAttemptAt,
		&sg.WelcomeEmail.DeliveredAt, &sg.WelcomeEmail.FailedAt, &sg.WelcomeEmail.FailureReason,
		&sg.WelcomeEmail.QueueJobID, &sg.WelcomeEmail.NotificationID,
		&history, &sg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching signup: %w", err)
	}

	parsed, err := models.ParseULID(rowID)
	if err != nil {
		return nil, fmt.Errorf("parsing signup id: %w", err)
	}
	sg.ID = parsed

	if len(history) > 0 {
		if err := json.Unmarshal(history, &sg.WelcomeEmail.DeliveryHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling delivery history: %w", err)
		}
	}
	return &sg, nil
}

// CreateLogin inserts a new login entity alongside its two mirrors (email
// alert, in-app notification).
func (s *Store) CreateLogin(ctx context.Context, l *models.Login) error {
	alertHistory, err := json.Marshal(l.LoginAlertEmail.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling alert delivery history: %w", err)
	}
	inAppHistory, err := json.Marshal(l.LoginInAppNotification.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling in-app delivery history: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO logins (
			id, user_id, ip_address,
			login_alert_email_status, login_alert_email_attempts, login_alert_email_delivery_history,
			login_in_app_status, login_in_app_attempts, login_in_app_delivery_history,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		l.ID.String(), l.UserID, l.IPAddress,
		l.LoginAlertEmail.Status, l.LoginAlertEmail.Attempts, alertHistory,
		l.LoginInAppNotification.Status, l.LoginInAppNotification.Attempts, inAppHistory,
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting login: %w", err)
	}
	return nil
}

// UpdateLoginAlertEmailMirror updates the login-alert-email mirror on the
// login row identified by loginID.
func (s *Store) UpdateLoginAlertEmailMirror(ctx context.Context, loginID string, mirror models.MirrorSummary) error {
	history, err := json.Marshal(mirror.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE logins SET
			login_alert_email_status = $2, login_alert_email_attempts = $3,
			login_alert_email_last_attempt_at = $4, login_alert_email_delivered_at = $5,
			login_alert_email_failed_at = $6, login_alert_email_failure_reason = $7,
			login_alert_email_queue_job_id = $8, login_alert_email_notification_id = $9,
			login_alert_email_delivery_history = $10
		WHERE id = $1`,
		loginID, mirror.Status, mirror.Attempts, mirror.LastAttemptAt, mirror.DeliveredAt,
		mirror.FailedAt, mirror.FailureReason, mirror.QueueJobID, mirror.NotificationID, history,
	)
	if err != nil {
		return fmt.Errorf("updating login alert mirror: %w", err)
	}
	return nil
}

// UpdateLoginInAppMirror updates the login in-app-notification mirror.
func (s *Store) UpdateLoginInAppMirror(ctx context.Context, loginID string, mirror models.MirrorSummary) error {
	history, err := json.Marshal(mirror.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE logins SET
			login_in_app_status = $2, login_in_app_attempts = $3,
			login_in_app_last_attempt_at = $4, login_in_app_delivered_at = $5,
			login_in_app_failed_at = $6, login_in_app_failure_reason = $7,
			login_in_app_queue_job_id = $8, login_in_app_notification_id = $9,
			login_in_app_delivery_history = $10
		WHERE id = $1`,
		loginID, mirror.Status, mirror.Attempts, mirror.LastAttemptAt, mirror.DeliveredAt,
		mirror.FailedAt, mirror.FailureReason, mirror.QueueJobID, mirror.NotificationID, history,
	)
	if err != nil {
		return fmt.Errorf("updating login in-app mirror: %w", err)
	}
	return nil
}

// CreatePurchase inserts a new purchase entity alongside its push mirror.
func (s *Store) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	items, err := json.Marshal(p.Items)
	if err != nil {
		return fmt.Errorf("marshaling items: %w", err)
	}
	history, err := json.Marshal(p.PurchasePushNotification.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO purchases (
			id, user_id, order_id, total_amount, currency, items,
			push_status, push_attempts, push_delivery_history, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID.String(), p.UserID, p.OrderID, p.TotalAmount, p.Currency, items,
		p.PurchasePushNotification.Status, p.PurchasePushNotification.Attempts, history, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting purchase: %w", err)
	}
	return nil
}

// UpdatePurchasePushMirror updates the purchase-push mirror by order ID.
func (s *Store) UpdatePurchasePushMirror(ctx context.Context, orderID string, mirror models.MirrorSummary) error {
	history, err := json.Marshal(mirror.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE purchases SET
			push_status = $2, push_attempts = $3, push_last_attempt_at = $4,
			push_delivered_at = $5, push_failed_at = $6, push_failure_reason = $7,
			push_queue_job_id = $8, push_notification_id = $9, push_delivery_history = $10
		WHERE order_id = $1`,
		orderID, mirror.Status, mirror.Attempts, mirror.LastAttemptAt, mirror.DeliveredAt,
		mirror.FailedAt, mirror.FailureReason, mirror.QueueJobID, mirror.NotificationID, history,
	)
	if err != nil {
		return fmt.Errorf("updating purchase mirror: %w", err)
	}
	return nil
}

// CreateFriendRequest inserts a new friend-request entity alongside its
// in-app mirror.
func (s *Store) CreateFriendRequest(ctx context.Context, fr *models.FriendRequest) error {
	history, err := json.Marshal(fr.FriendRequestInAppNotification.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO friend_requests (
			id, from_user_id, to_user_id,
			in_app_status, in_app_attempts, in_app_delivery_history, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		fr.ID.String(), fr.FromUserID, fr.ToUserID,
		fr.FriendRequestInAppNotification.Status, fr.FriendRequestInAppNotification.Attempts,
		history, fr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting friend request: %w", err)
	}
	return nil
}

// UpdateFriendRequestMirror updates the friend-request in-app mirror.
func (s *Store) UpdateFriendRequestMirror(ctx context.Context, id string, mirror models.MirrorSummary) error {
	history, err := json.Marshal(mirror.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE friend_requests SET
			in_app_status = $2, in_app_attempts = $3, in_app_last_attempt_at = $4,
			in_app_delivered_at = $5, in_app_failed_at = $6, in_app_failure_reason = $7,
			in_app_queue_job_id = $8, in_app_notification_id = $9, in_app_delivery_history = $10
		WHERE id = $1`,
		id, mirror.Status, mirror.Attempts, mirror.LastAttemptAt, mirror.DeliveredAt,
		mirror.FailedAt, mirror.FailureReason, mirror.QueueJobID, mirror.NotificationID, history,
	)
	if err != nil {
		return fmt.Errorf("updating friend request mirror: %w", err)
	}
	return nil
}

// CreateResetPassword inserts a new reset-password entity alongside its
// email mirror.
func (s *Store) CreateResetPassword(ctx context.Context, rp *models.ResetPassword) error {
	history, err := json.Marshal(rp.ResetEmail.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO reset_passwords (
			id, user_id, token,
			reset_email_status, reset_email_attempts, reset_email_delivery_history, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rp.ID.String(), rp.UserID, rp.Token,
		rp.ResetEmail.Status, rp.ResetEmail.Attempts, history, rp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting reset password: %w", err)
	}
	return nil
}

// UpdateResetPasswordMirror updates the reset-password email mirror by
// token.
func (s *Store) UpdateResetPasswordMirror(ctx context.Context, token string, mirror models.MirrorSummary) error {
	history, err := json.Marshal(mirror.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE reset_passwords SET
			reset_email_status = $2, reset_email_attempts = $3, reset_email_last_attempt_at = $4,
			reset_email_delivered_at = $5, reset_email_failed_at = $6, reset_email_failure_reason = $7,
			reset_email_queue_job_id = $8, reset_email_notification_id = $9, reset_email_delivery_history = $10
		WHERE token = $1`,
		token, mirror.Status, mirror.Attempts, mirror.LastAttemptAt, mirror.DeliveredAt,
		mirror.FailedAt, mirror.FailureReason, mirror.QueueJobID, mirror.NotificationID, history,
	)
	if err != nil {
		return fmt.Errorf("updating reset password mirror: %w", err)
	}
	return nil
}

// GetLoginByID fetches a login entity by ID, for the login mirror-status
// endpoints.
func (s *Store) GetLoginByID(ctx context.Context, id string) (*models.Login, error) {
	var l models.Login
	var rowID string
	var alertHistory, inAppHistory []byte

	err := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, ip_address,
			login_alert_email_status, login_alert_email_attempts, login_alert_email_last_attempt_at,
			login_alert_email_delivered_at, login_alert_email_failed_at, login_alert_email_failure_reason,
			login_alert_email_queue_job_id, login_alert_email_notification_id, login_alert_email_delivery_history,
			login_in_app_status, login_in_app_attempts, login_in_app_last_attempt_at,
			login_in_app_delivered_at, login_in_app_failed_at, login_in_app_failure_reason,
			login_in_app_queue_job_id, login_in_app_notification_id, login_in_app_delivery_history,
			created_at
		FROM logins WHERE id = $1`, id).Scan(
		&rowID, &l.UserID, &l.IPAddress,
		&l.LoginAlertEmail.Status, &l.LoginAlertEmail.Attempts, &l.LoginAlertEmail.LastAttemptAt,
		&l.LoginAlertEmail.DeliveredAt, &l.LoginAlertEmail.FailedAt, &l.LoginAlertEmail.FailureReason,
		&l.LoginAlertEmail.QueueJobID, &l.LoginAlertEmail.NotificationID, &alertHistory,
		&l.LoginInAppNotification.Status, &l.LoginInAppNotification.Attempts, &l.LoginInAppNotification.LastAttemptAt,
		&l.LoginInAppNotification.DeliveredAt, &l.LoginInAppNotification.FailedAt, &l.LoginInAppNotification.FailureReason,
		&l.LoginInAppNotification.QueueJobID, &l.LoginInAppNotification.NotificationID, &inAppHistory,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching login: %w", err)
	}

	parsed, err := models.ParseULID(rowID)
	if err != nil {
		return nil, fmt.Errorf("parsing login id: %w", err)
	}
	l.ID = parsed

	if len(alertHistory) > 0 {
		if err := json.Unmarshal(alertHistory, &l.LoginAlertEmail.DeliveryHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling login alert delivery history: %w", err)
		}
	}
	if len(inAppHistory) > 0 {
		if err := json.Unmarshal(inAppHistory, &l.LoginInAppNotification.DeliveryHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling login in-app delivery history: %w", err)
		}
	}
	return &l, nil
}

// GetPurchaseByID fetches a purchase entity by ID.
func (s *Store) GetPurchaseByID(ctx context.Context, id string) (*models.Purchase, error) {
	var p models.Purchase
	var rowID string
	var items, history []byte

	err := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, order_id, total_amount, currency, items,
			push_status, push_attempts, push_last_attempt_at, push_delivered_at,
			push_failed_at, push_failure_reason, push_queue_job_id, push_notification_id,
			push_delivery_history, created_at
		FROM purchases WHERE id = $1`, id).Scan(
		&rowID, &p.UserID, &p.OrderID, &p.TotalAmount, &p.Currency, &items,
		&p.PurchasePushNotification.Status, &p.PurchasePushNotification.Attempts,
		&p.PurchasePushNotification.LastAttemptAt, &p.PurchasePushNotification.DeliveredAt,
		&p.PurchasePushNotification.FailedAt, &p.PurchasePushNotification.FailureReason,
		&p.PurchasePushNotification.QueueJobID, &p.PurchasePushNotification.NotificationID,
		&history, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching purchase: %w", err)
	}

	parsed, err := models.ParseULID(rowID)
	if err != nil {
		return nil, fmt.Errorf("parsing purchase id: %w", err)
	}
	p.ID = parsed

	if len(items) > 0 {
		if err := json.Unmarshal(items, &p.Items); err != nil {
			return nil, fmt.Errorf("unmarshaling purchase items: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &p.PurchasePushNotification.DeliveryHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling purchase delivery history: %w", err)
		}
	}
	return &p, nil
}

// GetFriendRequestByID fetches a friend-request entity by ID.
func (s *Store) GetFriendRequestByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	var fr models.FriendRequest
	var rowID string
	var history []byte

	err := s.Pool.QueryRow(ctx, `
		SELECT id, from_user_id, to_user_id,
			in_app_status, in_app_attempts, in_app_last_attempt_at, in_app_delivered_at,
			in_app_failed_at, in_app_failure_reason, in_app_queue_job_id, in_app_notification_id,
			in_app_delivery_history, created_at
		FROM friend_requests WHERE id = $1`, id).Scan(
		&rowID, &fr.FromUserID, &fr.ToUserID,
		&fr.FriendRequestInAppNotification.Status, &fr.FriendRequestInAppNotification.Attempts,
		&fr.FriendRequestInAppNotification.LastAttemptAt, &fr.FriendRequestInAppNotification.DeliveredAt,
		&fr.FriendRequestInAppNotification.FailedAt, &fr.FriendRequestInAppNotification.FailureReason,
		&fr.FriendRequestInAppNotification.QueueJobID, &fr.FriendRequestInAppNotification.NotificationID,
		&history, &fr.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching friend request: %w", err)
	}

	parsed, err := models.ParseULID(rowID)
	if err != nil {
		return nil, fmt.Errorf("parsing friend request id: %w", err)
	}
	fr.ID = parsed

	if len(history) > 0 {
		if err := json.Unmarshal(history, &fr.FriendRequestInAppNotification.DeliveryHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling friend request delivery history: %w", err)
		}
	}
	return &fr, nil
}

// GetResetPasswordByID fetches a reset-password entity by ID.
func (s *Store) GetResetPasswordByID(ctx context.Context, id string) (*models.ResetPassword, error) {
	var rp models.ResetPassword
	var rowID string
	var history []byte

	err := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, token,
			reset_email_status, reset_email_attempts, reset_email_last_attempt_at,
			reset_email_delivered_at, reset_email_failed_at, reset_email_failure_reason,
			reset_email_queue_job_id, reset_email_notification_id, reset_email_delivery_history,
			created_at
		FROM reset_passwords WHERE id = $1`, id).Scan(
		&rowID, &rp.UserID, &rp.Token,
		&rp.ResetEmail.Status, &rp.ResetEmail.Attempts, &rp.ResetEmail.LastAttemptAt,
		&rp.ResetEmail.DeliveredAt, &rp.ResetEmail.FailedAt, &rp.ResetEmail.FailureReason,
		&rp.ResetEmail.QueueJobID, &rp.ResetEmail.NotificationID, &history,
		&rp.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching reset password: %w", err)
	}

	parsed, err := models.ParseULID(rowID)
	if err != nil {
		return nil, fmt.Errorf("parsing reset password id: %w", err)
	}
	rp.ID = parsed

	if len(history) > 0 {
		if err := json.Unmarshal(history, &rp.ResetEmail.DeliveryHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling reset password delivery history: %w", err)
		}
	}
	return &rp, nil
}
